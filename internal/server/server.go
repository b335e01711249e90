// Package server hosts the editable invoice for a local browser.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pwnholic/invsnap/internal"
	"github.com/pwnholic/invsnap/internal/notify"
	"github.com/pwnholic/invsnap/internal/pipeline"
	"github.com/pwnholic/invsnap/internal/view"
)

const ToastSlotSelector = "[data-toast-slot]"

type Server struct {
	view     *view.View
	exporter *pipeline.Exporter
	toast    *notify.Toast
	metrics  *Metrics
	logger   *internal.Logger
	router   *mux.Router
}

// New wires the routes. The toast must be the notifier the exporter reports to.
func New(v *view.View, exporter *pipeline.Exporter, toast *notify.Toast, reg *prometheus.Registry, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.GetDefaultLogger()
	}
	s := &Server{
		view:     v,
		exporter: exporter,
		toast:    toast,
		metrics:  NewMetrics(reg),
		logger:   logger,
		router:   mux.NewRouter(),
	}

	s.router.HandleFunc("/", s.index).Methods("GET")
	s.router.HandleFunc("/edit", s.edit).Methods("POST")
	s.router.HandleFunc("/items", s.addItem).Methods("POST")
	s.router.HandleFunc("/items/{id:[0-9]+}/remove", s.removeItem).Methods("POST")
	s.router.HandleFunc("/export", s.export).Methods("POST")
	s.router.HandleFunc("/healthz", s.health).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("serving invoice on http://%s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	}
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	page, err := s.view.HTML()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	if msg, ok := s.toast.Active(); ok {
		page, err = injectToast(page, msg, s.toast.Duration)
		if err != nil {
			s.fail(w, http.StatusInternalServerError, err)
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(page))
}

// injectToast renders msg into the toast slot. The banner hides itself
// after the toast duration even if the page is not reloaded.
func injectToast(page string, msg notify.Message, d time.Duration) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}
	background := "#16a34a"
	if msg.Kind == notify.KindFailure {
		background = "#dc2626"
	}
	banner := fmt.Sprintf(
		`<style>@keyframes invsnap-toast{to{opacity:0;visibility:hidden}}</style>`+
			`<div data-toast=%q role="status" style="position: fixed; top: 16px; right: 16px; padding: 12px 20px; border-radius: 6px; color: white; background-color: %s; animation: invsnap-toast 0s %gs forwards;">%s</div>`,
		string(msg.Kind), background, d.Seconds(), html.EscapeString(msg.Text))
	doc.Find(ToastSlotSelector).First().SetHtml(banner)
	return doc.Html()
}

// applyForm keeps edits typed since the last save when a toolbar or item
// button submits the form.
func (s *Server) applyForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return &badRequest{err}
	}
	if len(r.PostForm) == 0 {
		return nil
	}
	return s.view.ApplyForm(r.PostForm)
}

type badRequest struct{ error }

func (e *badRequest) Unwrap() error { return e.error }

func (s *Server) edit(w http.ResponseWriter, r *http.Request) {
	if err := s.applyForm(r); err != nil {
		s.editError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	if err := s.applyForm(r); err != nil {
		s.editError(w, err)
		return
	}
	if _, err := s.view.AddLineItem(); err != nil {
		s.editError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	if err := s.applyForm(r); err != nil {
		s.editError(w, err)
		return
	}
	if _, err := s.view.RemoveLineItem(id); err != nil {
		s.editError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	if err := s.applyForm(r); err != nil {
		if errors.Is(err, view.ErrFrozen) {
			s.metrics.Exports.WithLabelValues(outcomeInProgress).Inc()
		}
		s.editError(w, err)
		return
	}

	start := time.Now()
	res, err := s.exporter.ExportTo(r.Context(), nil)
	switch {
	case err == nil:
		s.metrics.Duration.Observe(time.Since(start).Seconds())
		s.metrics.Exports.WithLabelValues(outcomeSuccess).Inc()
		if res.Overflow {
			s.logger.Warn("%s was clipped to one page", res.Name)
		}
		s.writePDF(w, res.Name, res.Artifact.Data)
	case errors.Is(err, pipeline.ErrExportInProgress):
		s.metrics.Exports.WithLabelValues(outcomeInProgress).Inc()
		s.fail(w, http.StatusConflict, err)
	case errors.Is(err, pipeline.ErrCapture):
		s.metrics.Duration.Observe(time.Since(start).Seconds())
		s.metrics.Exports.WithLabelValues(outcomeCapture).Inc()
		s.fail(w, http.StatusBadGateway, err)
	default:
		s.metrics.Duration.Observe(time.Since(start).Seconds())
		s.metrics.Exports.WithLabelValues(outcomeAssembly).Inc()
		s.fail(w, http.StatusInternalServerError, err)
	}
}

type healthStatus struct {
	Status string `json:"status"`
	Export string `json:"export"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthStatus{Status: "healthy", Export: s.exporter.Status().String()})
}

func (s *Server) writePDF(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("writing PDF to response: %v", err)
	}
}

func (s *Server) editError(w http.ResponseWriter, err error) {
	var bad *badRequest
	if errors.As(err, &bad) {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	if errors.Is(err, view.ErrFrozen) {
		s.fail(w, http.StatusConflict, err)
		return
	}
	s.fail(w, http.StatusInternalServerError, err)
}

func (s *Server) fail(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.Error("%v", err)
	} else {
		s.logger.Warn("%v", err)
	}
	http.Error(w, err.Error(), code)
}
