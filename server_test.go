package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/elstonfarm/farmbooks_backend/config"
)

func TestRouterRecoversFromPanics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	config.SetDB(&gorm.DB{})
	defer config.SetDB(nil)

	r := newRouter(config.GetLogger())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestRouterHealthzBeforeDatabaseReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	config.SetDB(nil)

	r := newRouter(config.GetLogger())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("healthz status = %d, want 204", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/reconciliation/sessions", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("app route status = %d, want 503", w.Code)
	}
}
