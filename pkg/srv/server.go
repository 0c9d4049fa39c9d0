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


// Package srv runs an acquisition engine as a long lived service with an
// HTTP API, frame recording and event publishing.
package srv

import (
	"context"
	"sync"

	"jinr.ru/greenlab/go-nsp/pkg/config"
	"jinr.ru/greenlab/go-nsp/pkg/log"
	"jinr.ru/greenlab/go-nsp/pkg/nsp"
	"jinr.ru/greenlab/go-nsp/pkg/publish"
	"jinr.ru/greenlab/go-nsp/pkg/record"
	"jinr.ru/greenlab/go-nsp/pkg/registry"
	"jinr.ru/greenlab/go-nsp/pkg/state"
	"jinr.ru/greenlab/go-nsp/pkg/trial"
)

var logger = log.For("srv")

type Server struct {
	context.Context
	*config.Config
	engine    *nsp.Engine
	store     *state.ChannelState
	recorder  *record.Recorder
	publisher *publish.Publisher
	natsConn  publish.Conn
	api       *ApiServer
	closeOnce sync.Once
}

// NewServer opens the snapshot store and the engine. opts are passed to
// nsp.Open, the store option is added here.
func NewServer(ctx context.Context, cfg *config.Config, opts ...nsp.Option) (*Server, error) {
	logger.Info("Initializing server with api address: %s", cfg.Api.Endpoint())

	store, err := state.NewChannelState(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	s := &Server{
		Context: ctx,
		Config:  cfg,
		store:   store,
	}

	engine, err := nsp.Open(ctx, cfg, append(opts, nsp.WithStore(store))...)
	if err != nil {
		store.Close()
		return nil, err
	}
	s.engine = engine

	s.recorder = record.NewRecorder(ctx)
	for g := registry.GroupID(1); g <= registry.MaxGroup; g++ {
		if _, err := engine.RegisterGroupCallback(g, s.recorder.OnGroup); err != nil {
			s.Close()
			return nil, err
		}
	}
	if _, err := engine.RegisterSpikeCallback(s.recorder.OnSpike); err != nil {
		s.Close()
		return nil, err
	}

	if cfg.Nats != nil && cfg.Nats.URL != "" {
		conn, err := publish.Connect(cfg.Nats.URL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.natsConn = conn
		s.publisher = publish.NewPublisher(conn, cfg.Nats.Subject, engine.ID())
		if _, err := engine.RegisterSpikeCallback(s.publisher.OnSpike); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.api = NewApiServer(ctx, cfg, s)
	return s, nil
}

func (s *Server) Engine() *nsp.Engine {
	return s.engine
}

// StartTrial activates the trial with the configured defaults.
func (s *Server) StartTrial() error {
	return s.engine.TrialConfig(s.engine.DefaultTrialConfig(), trial.ModeActivate)
}

func (s *Server) Run() error {
	defer s.Close()

	if err := s.StartTrial(); err != nil {
		return err
	}
	if s.publisher != nil {
		go s.publisher.Run(s.Context, publish.DefaultInterval)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.api.Run()
	}()

	select {
	case <-s.Context.Done():
		return s.Context.Err()
	case err := <-errChan:
		return err
	}
}

type Status struct {
	Engine  nsp.Stats      `json:"engine"`
	Record  record.Status  `json:"record"`
	Publish *publish.Stats `json:"publish,omitempty"`
}

func (s *Server) Status() Status {
	status := Status{
		Engine: s.engine.Stats(),
		Record: s.recorder.Status(),
	}
	if s.publisher != nil {
		stats := s.publisher.Stats()
		status.Publish = &stats
	}
	return status
}

// Persist starts recording frames into a new file in dir.
func (s *Server) Persist(dir, prefix string) (string, error) {
	if dir == "" {
		dir = s.Config.RecordDir
	}
	return s.recorder.Persist(dir, prefix)
}

func (s *Server) Flush() error {
	return s.recorder.Flush()
}

func (s *Server) Close() {
	s.closeOnce.Do(s.close)
}

func (s *Server) close() {
	if s.recorder != nil && s.recorder.File() != "" {
		if err := s.recorder.Flush(); err != nil {
			logger.Error("Error while flushing recorder: %s", err)
		}
	}
	if s.engine != nil {
		s.engine.Close()
	}
	if s.publisher != nil {
		if err := s.publisher.Flush(); err != nil {
			logger.Error("Error while publishing events: %s", err)
		}
	}
	if s.natsConn != nil {
		s.natsConn.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}
