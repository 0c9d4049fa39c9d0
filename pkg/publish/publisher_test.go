/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/


package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-nsp/pkg/layers"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, published{subject: subject, data: data})
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

type mockConn struct {
	mock.Mock
}

func (m *mockConn) Publish(subject string, data []byte) error {
	args := m.Called(subject, data)
	return args.Error(0)
}

func (m *mockConn) Close() {
	m.Called()
}

func spike(t uint64, ch, unit uint16) (*layers.Frame, *layers.SpikeLayer) {
	f := layers.NewSpikeFrame(t, ch, unit, nil)
	return f, f.Spike
}

func TestFlushPublishesBatch(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "nsp.events", "session-1")

	require.NoError(t, p.Flush())
	assert.Equal(t, 0, conn.count())

	p.OnSpike(spike(10, 1, 1))
	p.OnSpike(spike(20, 2, layers.NoiseUnit))
	p.OnSpike(spike(30, 2, 3))
	require.NoError(t, p.Flush())
	require.Equal(t, 1, conn.count())
	assert.Equal(t, "nsp.events", conn.msgs[0].subject)

	m, err := Decode(conn.msgs[0].data)
	require.NoError(t, err)
	assert.Equal(t, "session-1", m.Session)
	assert.Equal(t, uint64(1), m.Sequence)
	assert.Equal(t, []Event{{Channel: 1, Unit: 1, Timestamp: 10}, {Channel: 2, Unit: 3, Timestamp: 30}}, m.Events)
	assert.Equal(t, Stats{Messages: 1, Events: 2}, p.Stats())
}

func TestPublishError(t *testing.T) {
	conn := &mockConn{}
	conn.On("Publish", "nsp.events", mock.Anything).Return(errors.New("connection closed")).Once()
	conn.On("Publish", "nsp.events", mock.Anything).Return(nil).Once()
	p := NewPublisher(conn, "nsp.events", "s")

	p.OnSpike(spike(1, 1, 1))
	assert.Error(t, p.Flush())
	assert.Equal(t, uint64(1), p.Stats().Errors)

	p.OnSpike(spike(2, 1, 1))
	require.NoError(t, p.Flush())
	assert.Equal(t, uint64(1), p.Stats().Messages)
	conn.AssertExpectations(t)
}

func TestRunFlushesOnInterval(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "nsp.events", "s")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	p.OnSpike(spike(1, 1, 1))
	require.Eventually(t, func() bool { return conn.count() == 1 }, time.Second, time.Millisecond)

	p.OnSpike(spike(2, 1, 2))
	cancel()
	<-done
	assert.Equal(t, 2, conn.count())
}
