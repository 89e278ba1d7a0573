// Package webhook serves the provider webhook: the subscription
// verification handshake and the signed event receiver.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/pborman/uuid"

	"github.com/mqy/wabiz/engine"
	"github.com/mqy/wabiz/metrics"
	"github.com/mqy/wabiz/notify"
)

const (
	DefaultMaxBodyBytes = 1 << 20

	SignatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
)

// Processor applies a webhook body synchronously.
type Processor interface {
	Process(ctx context.Context, body []byte) ([]*engine.Result, error)
}

// Enqueuer hands a webhook body over to asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, body []byte) error
}

type Config struct {
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 checking when not empty.
	AppSecret    string
	MaxBodyBytes int64
}

type Handler struct {
	conf  Config
	proc  Processor
	queue Enqueuer
}

// NewHandler creates a Handler. When queue is not nil bodies are enqueued
// instead of processed inline.
func NewHandler(conf Config, proc Processor, queue Enqueuer) *Handler {
	if conf.MaxBodyBytes <= 0 {
		conf.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{conf: conf, proc: proc, queue: queue}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	switch r.Method {
	case http.MethodGet:
		h.verify(rw, r)
	case http.MethodPost:
		h.receive(rw, r)
	default:
		rw.Header().Set("Allow", "GET, POST")
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
	}
	metrics.WebhookRequests.WithLabelValues(r.Method, strconv.Itoa(rw.code)).Inc()
}

// verify answers the subscription handshake by echoing hub.challenge.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || h.conf.VerifyToken == "" ||
		!hmac.Equal([]byte(q.Get("hub.verify_token")), []byte(h.conf.VerifyToken)) {
		glog.Warningf("webhook: verification refused, mode: %q, remote: %s", q.Get("hub.mode"), r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	glog.Infof("webhook: verified subscription")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	reqID := strings.ReplaceAll(uuid.New(), "-", "")

	body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, h.conf.MaxBodyBytes))
	if err != nil {
		glog.Errorf("webhook %s: read body err: %v", reqID, err)
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	if h.conf.AppSecret != "" {
		if err := verifySignature(h.conf.AppSecret, r.Header.Get(SignatureHeader), body); err != nil {
			glog.Warningf("webhook %s: %v, remote: %s", reqID, err, r.RemoteAddr)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	glog.V(5).Infof("webhook %s: received %s", reqID, body)

	if h.queue != nil {
		if _, err := notify.Decode(body); err != nil {
			glog.Warningf("webhook %s: bad payload: %v", reqID, err)
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if err := h.queue.Enqueue(r.Context(), body); err != nil {
			glog.Errorf("webhook %s: enqueue err: %v", reqID, err)
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
	} else {
		results, err := h.proc.Process(r.Context(), body)
		if err != nil {
			glog.Warningf("webhook %s: bad payload: %v", reqID, err)
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		logResults(reqID, results)
	}

	// Per item failures are not reported: a non 2xx makes the provider
	// redeliver the whole batch.
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"success"}`))
}

func logResults(reqID string, results []*engine.Result) {
	if !glog.V(5) {
		return
	}
	for i, res := range results {
		glog.Infof("webhook %s: #%d %s %q success: %v, changed: %v, duplicate: %v, reason: %s",
			reqID, i, res.Kind, res.MessengerID, res.Success, res.Changed, res.Duplicate, res.Reason)
	}
}

// Sign returns the X-Hub-Signature-256 value of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(secret, header string, body []byte) error {
	if header == "" {
		return errors.New("missing signature")
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return errors.New("unsupported signature scheme")
	}
	expected := Sign(secret, body)
	if !hmac.Equal([]byte(strings.ToLower(header)), []byte(expected)) {
		return errors.New("signature mismatch")
	}
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
