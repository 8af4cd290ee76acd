package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"push_notify/internal/badge"
	"push_notify/internal/config"
	"push_notify/internal/metrics"
	"push_notify/internal/model"
	"push_notify/internal/utils/log"
)

const (
	maxPushBody     = 64 << 10
	deviceWriteWait = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Device delivery statuses.
const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
	DeliveryAbsent = "absent"
)

type (
	PushHandler interface {
		HandleSync(ctx context.Context, req model.Request) model.Content
	}

	AccountRegistry interface {
		FindByAccessToken(ctx context.Context, token string) (*model.Account, error)
		Create(ctx context.Context, acc *model.Account) (primitive.ObjectID, error)
	}

	Deps struct {
		Notifier PushHandler
		Counter  badge.Counter
		// Accounts is optional; without it POST /accounts answers 501.
		Accounts  AccountRegistry
		PublicKey string
		Metrics   *metrics.Metrics
		Gatherer  prometheus.Gatherer
		// Health is optional and backs GET /healthz.
		Health func(ctx context.Context) error
	}

	HttpServer struct {
		cfg  config.HttpServerConfig
		deps Deps

		mu     sync.Mutex
		mapper map[string]*device
	}

	// device serializes writes; a websocket.Conn allows one writer at a time.
	device struct {
		mu   sync.Mutex
		conn *websocket.Conn
	}

	accountRequest struct {
		Server      string `json:"server" validate:"required,hostname_port|hostname"`
		AccessToken string `json:"access_token" validate:"required"`
		AccountID   string `json:"account_id"`
		Username    string `json:"username"`
	}
)

var validate = validator.New()

func NewHttpServer(cfg config.HttpServerConfig, deps Deps) *HttpServer {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &HttpServer{
		cfg:    cfg,
		deps:   deps,
		mapper: make(map[string]*device),
	}
}

func (s *HttpServer) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/push", s.HandlePush()).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.HandleInitWS()).Methods(http.MethodGet)
	r.HandleFunc("/badge", s.GetBadge()).Methods(http.MethodGet)
	r.HandleFunc("/badge/reset", s.ResetBadge()).Methods(http.MethodPost)
	r.HandleFunc("/keys", s.GetPublicKey()).Methods(http.MethodGet)
	r.HandleFunc("/accounts", s.RegisterAccount()).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.Healthz()).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is done, then shuts down gracefully and closes every
// device connection.
func (s *HttpServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.Timeout,
		WriteTimeout: s.cfg.Timeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("address", s.cfg.Address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.closeDevices()
	return srv.Shutdown(shutdownCtx)
}

func (s *HttpServer) HandlePush() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBody)).Decode(&req); err != nil {
			log.Debug("invalid push body", zap.Error(err))
			http.Error(w, "invalid push body", http.StatusBadRequest)
			return
		}

		content := s.deps.Notifier.HandleSync(r.Context(), req)

		if id := r.URL.Query().Get("device"); id != "" {
			s.deps.Metrics.DeviceDelivery(s.forward(id, content))
		}

		writeJSON(w, http.StatusOK, content)
	}
}

func (s *HttpServer) HandleInitWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("device")
		if id == "" {
			http.Error(w, "device cannot be empty", http.StatusBadRequest)
			return
		}

		if s.Connected(id) {
			http.Error(w, "duplicated device", http.StatusConflict)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		d := &device{conn: conn}
		s.mu.Lock()
		if _, ok := s.mapper[id]; ok {
			s.mu.Unlock()
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "duplicated device")) //nolint:errcheck
			conn.Close()
			return
		}
		s.mapper[id] = d
		s.mu.Unlock()

		log.Debug("device connected", zap.String("device", id))
		go s.processWSMessage(id, d)
	}
}

// processWSMessage drains the connection until it closes. Devices only
// receive; anything they send is ignored.
func (s *HttpServer) processWSMessage(id string, d *device) {
	for {
		if _, _, err := d.conn.ReadMessage(); err != nil {
			log.Debug("device web socket closed", zap.String("device", id), zap.Error(err))
			s.remove(id, d)
			return
		}
	}
}

// Connected reports whether a device subscription is registered under id.
func (s *HttpServer) Connected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.mapper[id]
	return ok
}

func (s *HttpServer) forward(id string, content model.Content) string {
	s.mu.Lock()
	d, ok := s.mapper[id]
	s.mu.Unlock()
	if !ok {
		return DeliveryAbsent
	}

	d.mu.Lock()
	d.conn.SetWriteDeadline(time.Now().Add(deviceWriteWait)) //nolint:errcheck
	err := d.conn.WriteJSON(&content)
	d.mu.Unlock()
	if err != nil {
		log.Warn("forward to device failed", zap.String("device", id), zap.Error(err))
		s.remove(id, d)
		return DeliveryFailed
	}
	return DeliverySent
}

// remove drops d only if it is still the connection registered under id.
func (s *HttpServer) remove(id string, d *device) {
	s.mu.Lock()
	if cur, ok := s.mapper[id]; ok && cur == d {
		delete(s.mapper, id)
	}
	s.mu.Unlock()
	d.conn.Close()
}

func (s *HttpServer) closeDevices() {
	s.mu.Lock()
	devices := s.mapper
	s.mapper = make(map[string]*device)
	s.mu.Unlock()

	for _, d := range devices {
		d.mu.Lock()
		d.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		d.mu.Unlock()
		d.conn.Close()
	}
}

func (s *HttpServer) GetBadge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := s.deps.Counter.Value(r.Context())
		if err != nil {
			log.Error("read badge failed", zap.Error(err))
			http.Error(w, "read badge failed", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"badge": n})
	}
}

// ResetBadge is called when the user has seen their notifications.
func (s *HttpServer) ResetBadge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Counter.Reset(r.Context()); err != nil {
			log.Error("reset badge failed", zap.Error(err))
			http.Error(w, "reset badge failed", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"badge": 0})
	}
}

func (s *HttpServer) GetPublicKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"public_key": s.deps.PublicKey})
	}
}

func (s *HttpServer) RegisterAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Accounts == nil {
			http.Error(w, "account store not configured", http.StatusNotImplemented)
			return
		}

		var req accountRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBody)).Decode(&req); err != nil {
			http.Error(w, "invalid account body", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(&req); err != nil {
			http.Error(w, "invalid account: server and access_token are required", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		existing, err := s.deps.Accounts.FindByAccessToken(ctx, req.AccessToken)
		if err != nil {
			log.Error("register account failed", zap.Error(err))
			http.Error(w, "register account failed", http.StatusInternalServerError)
			return
		}
		if existing != nil {
			http.Error(w, "account already registered", http.StatusConflict)
			return
		}

		acc := &model.Account{
			Server:      req.Server,
			AccessToken: req.AccessToken,
			AccountID:   req.AccountID,
			Username:    req.Username,
		}
		if _, err := s.deps.Accounts.Create(ctx, acc); err != nil {
			log.Error("register account failed", zap.Error(err))
			http.Error(w, "register account failed", http.StatusInternalServerError)
			return
		}

		log.Info("account registered", zap.String("server", acc.Server), zap.String("username", acc.Username))
		writeJSON(w, http.StatusCreated, acc)
	}
}

func (s *HttpServer) Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Health != nil {
			if err := s.deps.Health(r.Context()); err != nil {
				log.Warn("health check failed", zap.Error(err))
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok")) //nolint:errcheck
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("encode response failed", zap.Error(err))
		http.Error(w, "encode response failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck
}
