package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hamo/backend/internal/security"
)

const (
	IdempotencyKeyHeader   = "Idempotency-Key"
	idempotentReplayHeader = "Idempotent-Replayed"
	maxIdempotencyKeyLen   = 255
)

type idempotencyRecord struct {
	Done        bool   `json:"done"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency makes writes carrying an Idempotency-Key header safe to re-deliver. The first
// request claims the key with SETNX; its response is stored and replayed for later requests
// with the same key and body. A key reused with a different body is rejected. Server errors
// release the key so the client can retry. Redis failures fall through to normal handling.
func Idempotency(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" || rdb == nil {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "idempotency key too long"})
			return
		}

		rawBody, err := c.GetRawData()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "invalid body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(rawBody))

		subject := "anonymous"
		if id, ok := CurrentIdentity(c); ok {
			subject = id.SubjectID
		}
		redisKey := fmt.Sprintf("idem:%s:%s", subject, key)
		fingerprint := security.RequestFingerprint(c.Request.Method, c.Request.URL.Path, rawBody)

		pending, _ := json.Marshal(idempotencyRecord{Fingerprint: fingerprint})
		claimed, err := rdb.SetNX(c, redisKey, pending, ttl).Result()
		if err != nil {
			log.Warn().Err(err).Msg("idempotency claim failed")
			c.Next()
			return
		}

		if !claimed {
			replay(c, rdb, redisKey, fingerprint, log)
			return
		}

		writer := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		status := writer.Status()
		if status >= http.StatusInternalServerError {
			if err := rdb.Del(c, redisKey).Err(); err != nil {
				log.Warn().Err(err).Msg("idempotency release failed")
			}
			return
		}

		done, _ := json.Marshal(idempotencyRecord{
			Done:        true,
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: writer.Header().Get("Content-Type"),
			Body:        writer.buf.Bytes(),
		})
		if err := rdb.Set(c, redisKey, done, ttl).Err(); err != nil {
			log.Warn().Err(err).Msg("idempotency store failed")
		}
	}
}

func replay(c *gin.Context, rdb *redis.Client, redisKey, fingerprint string, log zerolog.Logger) {
	raw, err := rdb.Get(c, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Released between SETNX and GET by a failed first attempt.
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "conflict", "message": "request in progress, retry"})
			return
		}
		log.Warn().Err(err).Msg("idempotency lookup failed")
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "upstream_unavailable"})
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if record.Fingerprint != fingerprint {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency_key_reused", "message": "key was used for a different request"})
		return
	}
	if !record.Done {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "conflict", "message": "request in progress, retry"})
		return
	}

	c.Header(idempotentReplayHeader, "true")
	contentType := record.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	c.Data(record.Status, contentType, record.Body)
	c.Abort()
}
