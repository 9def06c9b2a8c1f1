// Copyright 2026 The AgentHive Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
)

// requestLogger logs one line per request at debug level. Health and
// metrics probes are skipped to keep scrape noise out of the logs.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Debug("Request handled")
	}
}

// compressedWriter routes the response body through a compressing encoder
// while keeping the original gin.ResponseWriter for headers and status.
type compressedWriter struct {
	gin.ResponseWriter
	encoder interface {
		Write([]byte) (int, error)
		Flush() error
		Close() error
	}
}

func (w *compressedWriter) Write(b []byte) (int, error) {
	return w.encoder.Write(b)
}

func (w *compressedWriter) WriteString(s string) (int, error) {
	return w.encoder.Write([]byte(s))
}

// compression negotiates brotli or gzip response encoding from the
// Accept-Encoding header. Upgrade requests (the trace websocket) and the
// Prometheus scrape endpoint pass through untouched.
func compression() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Upgrade") != "" || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		accept := c.GetHeader("Accept-Encoding")
		var cw *compressedWriter
		switch {
		case strings.Contains(accept, "br"):
			cw = &compressedWriter{
				ResponseWriter: c.Writer,
				encoder:        brotli.NewWriterLevel(c.Writer, brotli.DefaultCompression),
			}
			c.Header("Content-Encoding", "br")
		case strings.Contains(accept, "gzip"):
			cw = &compressedWriter{
				ResponseWriter: c.Writer,
				encoder:        gzip.NewWriter(c.Writer),
			}
			c.Header("Content-Encoding", "gzip")
		default:
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		c.Writer = cw
		defer func() {
			if err := cw.encoder.Close(); err != nil {
				log.Debugf("Closing response encoder: %v", err)
			}
			c.Header("Content-Length", fmt.Sprint(c.Writer.Size()))
		}()
		c.Next()
	}
}

// isLocalRequest reports whether the request arrived directly from
// loopback. Any forwarding header disqualifies it: a proxied request is a
// remote request no matter which address the proxy connects from.
func isLocalRequest(c *gin.Context) bool {
	if c.GetHeader("X-Forwarded-For") != "" ||
		c.GetHeader("X-Real-IP") != "" ||
		c.GetHeader("Forwarded") != "" {
		return false
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		host = c.Request.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// managementGuard protects state-changing endpoints. Localhost callers get
// through unchallenged; remote callers need remote management enabled plus
// a valid bearer key.
func (s *Server) managementGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isLocalRequest(c) {
			c.Next()
			return
		}
		if !s.cfg.Management.AllowRemote {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "management endpoints are restricted to localhost",
			})
			return
		}
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !s.cfg.CheckManagementKey(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid management key",
			})
			return
		}
		c.Next()
	}
}
