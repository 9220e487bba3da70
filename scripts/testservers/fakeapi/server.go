package main

import (
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/torosent/sweepfire/internal/auth"
	"github.com/torosent/sweepfire/internal/config"
)

const healthyAnswer = "No signs of glaucoma detected."

type serverOptions struct {
	Username     string
	Password     string
	Latency      time.Duration
	Jitter       time.Duration
	DegradedRate float64
	ErrorRate    float64
	MaxInFlight  int
	TokenTTL     time.Duration
	Logger       *zap.Logger
}

type server struct {
	opts     serverOptions
	key      []byte
	inFlight atomic.Int64

	mu  sync.Mutex
	rnd *rand.Rand
}

func newServer(opts serverOptions) *server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	return &server{
		opts: opts,
		key:  []byte(uuid.NewString()),
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+config.DefaultLoginPath, s.handleLogin)
	mux.HandleFunc("POST "+config.DefaultProcessPath, s.handleProcess)
	return mux
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var login struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&login); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid login payload"})
		return
	}
	if login.Username != s.opts.Username || login.Password != s.opts.Password {
		s.opts.Logger.Info("login rejected", zap.String("username", login.Username))
		respondJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid credentials"})
		return
	}

	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   login.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenTTL)),
	}).SignedString(s.key)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]any{"error": "token signing failed"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: auth.TokenCookie, Value: token, HttpOnly: true, Path: "/"})
	respondJSON(w, http.StatusOK, map[string]any{"message": "login successful"})
}

func (s *server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if err := s.authorize(r); err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	if s.opts.MaxInFlight > 0 && n > int64(s.opts.MaxInFlight) {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "too many uploads in progress"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "missing file field"})
		return
	}
	size, _ := io.Copy(io.Discard, file)
	file.Close()

	delay, roll := s.draw()
	select {
	case <-time.After(delay):
	case <-r.Context().Done():
		return
	}

	requestID := r.Header.Get("X-Request-ID")
	log := s.opts.Logger.With(zap.String("request_id", requestID), zap.String("file", header.Filename), zap.Int64("bytes", size))
	switch {
	case roll < s.opts.ErrorRate:
		log.Debug("upload failed")
		respondJSON(w, http.StatusInternalServerError, map[string]any{"error": "processing failed"})
	case roll < s.opts.ErrorRate+s.opts.DegradedRate:
		log.Debug("upload degraded")
		respondJSON(w, http.StatusOK, map[string]any{"answer": config.DefaultDegradedAnswer})
	default:
		log.Debug("upload processed", zap.Duration("delay", delay))
		respondJSON(w, http.StatusOK, map[string]any{"answer": healthyAnswer, "request_id": requestID})
	}
}

func (s *server) authorize(r *http.Request) error {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return errors.New("missing bearer token")
	}
	_, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return errors.New("invalid token")
	}
	return nil
}

// draw returns the processing delay and a roll in [0, 1) deciding the answer.
func (s *server) draw() (time.Duration, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delay := s.opts.Latency
	if s.opts.Jitter > 0 {
		delay += time.Duration(s.rnd.Int63n(int64(s.opts.Jitter)))
	}
	return delay, s.rnd.Float64()
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
