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


package srv

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-openapi/loads"
	"github.com/go-openapi/runtime/middleware"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"jinr.ru/greenlab/go-nsp/pkg/config"
	"jinr.ru/greenlab/go-nsp/pkg/log"
	"jinr.ru/greenlab/go-nsp/pkg/registry"
	"jinr.ru/greenlab/go-nsp/pkg/state"
	"jinr.ru/greenlab/go-nsp/pkg/trial"
)

const shutdownTimeout = 5 * time.Second

type Persist struct {
	Dir    string `json:"dir"`
	Prefix string `json:"prefix"`
}

type PersistResult struct {
	File string `json:"file"`
}

type RestoreResult struct {
	Changed int `json:"changed"`
}

type ApiServer struct {
	context.Context
	*config.Config
	*mux.Router
	server *Server
	docs   *loads.Document
}

func NewApiServer(ctx context.Context, cfg *config.Config, server *Server) *ApiServer {
	s := &ApiServer{
		Context: ctx,
		Config:  cfg,
		server:  server,
	}
	docs, err := loadDocs()
	if err != nil {
		logger.Error("Unable to load API docs: %s", err)
	}
	s.docs = docs
	s.configureRouter()
	return s
}

func (s *ApiServer) Run() error {
	logger.Debug("Starting API server: %s", s.Config.Api.Endpoint())
	httpServer := &http.Server{
		Handler: s.Handler(),
		Addr:    s.Config.Api.Endpoint(),
	}
	go func() {
		<-s.Context.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpServer.Shutdown(ctx)
	}()
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Handler is the router wrapped with docs, access log and panic recovery.
func (s *ApiServer) Handler() http.Handler {
	var h http.Handler = s.Router
	if s.docs != nil {
		h = middleware.Redoc(middleware.RedocOpts{
			BasePath: "/",
			Path:     "docs",
			SpecURL:  "/swagger.json",
			Title:    s.docs.Spec().Info.Title,
		}, h)
	}
	h = handlers.CombinedLoggingHandler(logger.Writer(log.DebugLevel), h)
	return handlers.RecoveryHandler(handlers.RecoveryLogger(logger), handlers.PrintRecoveryStack(true))(h)
}

func (s *ApiServer) configureRouter() {
	s.Router = mux.NewRouter()
	s.Router.HandleFunc("/swagger.json", s.handleSwagger()).Methods("GET")
	subRouter := s.Router.PathPrefix("/api").Subrouter()
	subRouter.HandleFunc("/group/{group:[0-9]+}", s.handleGroupGet()).Methods("GET")
	subRouter.HandleFunc("/channel/{channel:[0-9]+}", s.handleChannelGet()).Methods("GET")
	subRouter.HandleFunc("/channel/{channel:[0-9]+}", s.handleChannelSet()).Methods("POST")
	subRouter.HandleFunc("/trial", s.handleTrial()).Methods("GET")
	subRouter.HandleFunc("/trial/persist", s.handlePersist()).Methods("POST")
	subRouter.HandleFunc("/trial/flush", s.handleFlush()).Methods("GET")
	subRouter.HandleFunc("/snapshot", s.handleSnapshotList()).Methods("GET")
	subRouter.HandleFunc("/snapshot/{name}", s.handleSnapshotSave()).Methods("POST")
	subRouter.HandleFunc("/snapshot/{name}", s.handleSnapshotRestore()).Methods("PUT")
	subRouter.HandleFunc("/snapshot/{name}", s.handleSnapshotDelete()).Methods("DELETE")
}

func httpStatus(err error) int {
	var invalidChannel registry.ErrInvalidChannel
	var invalidGroup registry.ErrInvalidGroup
	var invalidName state.ErrInvalidName
	var notFound state.ErrSnapshotNotFound
	var busy trial.ErrSessionBusy
	var closed trial.ErrClosed
	switch {
	case errors.As(err, &invalidChannel), errors.As(err, &invalidGroup), errors.As(err, &invalidName):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &busy):
		return http.StatusConflict
	case errors.As(err, &closed):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), httpStatus(err))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error while encoding response: %s", err)
	}
}

func parseUint16(w http.ResponseWriter, value string) (uint16, bool) {
	parsed, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, false
	}
	return uint16(parsed), true
}

func (s *ApiServer) handleSwagger() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.docs == nil {
			http.Error(w, "API docs are not available", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(s.docs.Raw())
	}
}

func (s *ApiServer) handleGroupGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, ok := parseUint16(w, mux.Vars(r)["group"])
		if !ok {
			return
		}
		members, err := s.server.engine.GetSampleGroup(registry.GroupID(group))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, members)
	}
}

func (s *ApiServer) handleChannelGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, ok := parseUint16(w, mux.Vars(r)["channel"])
		if !ok {
			return
		}
		c, err := s.server.engine.Channel(registry.ChannelID(ch))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// handleChannelSet answers 202: the instrument applies the configuration
// later, GET returns it once acknowledged.
func (s *ApiServer) handleChannelSet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, ok := parseUint16(w, mux.Vars(r)["channel"])
		if !ok {
			return
		}
		update := registry.ChannelUpdate{}
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Debug("Handling channel set request: channel: %d", ch)
		if err := s.server.engine.SetChannelConfig(registry.ChannelID(ch), update); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *ApiServer) handleTrial() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.server.Status())
	}
}

func (s *ApiServer) handlePersist() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		persist := &Persist{}
		if err := json.NewDecoder(r.Body).Decode(persist); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Debug("Handling persist request: prefix: %s", persist.Prefix)
		file, err := s.server.Persist(persist.Dir, persist.Prefix)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, PersistResult{File: file})
	}
}

func (s *ApiServer) handleFlush() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("Handling flush request")
		if err := s.server.Flush(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func (s *ApiServer) handleSnapshotList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := s.server.store.ListSnapshots()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, names)
	}
}

func (s *ApiServer) handleSnapshotSave() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.server.engine.Save(mux.Vars(r)["name"]); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func (s *ApiServer) handleSnapshotRestore() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		changed, err := s.server.engine.Restore(mux.Vars(r)["name"])
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, RestoreResult{Changed: changed})
	}
}

func (s *ApiServer) handleSnapshotDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.server.store.DeleteSnapshot(mux.Vars(r)["name"]); err != nil {
			writeError(w, err)
		}
	}
}
