// Package status serves a small HTTP endpoint describing the running
// session. The body is a protobuf Struct rendered as JSON, protobuf binary
// or CBOR depending on the Accept header.
package status

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LemmyAI/puckserver/internal/transport"
)

// Source returns the fields to report. Values must be accepted by
// structpb.NewValue.
type Source func() map[string]any

// Handler serves GET requests with the fields returned by src.
func Handler(src Source, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	codecs := newCodecs()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s, err := structpb.NewStruct(src())
		if err != nil {
			log.Error("build status failed", zap.Error(err))
			http.Error(w, "status unavailable", http.StatusInternalServerError)
			return
		}

		c := codecs.pick(r.Header.Get("Accept"))
		body, err := c.Marshal(s)
		if err != nil {
			log.Error("encode status failed", zap.String("content_type", c.ContentType()), zap.Error(err))
			http.Error(w, "status unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", c.ContentType())
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(body)
	})
}

// SessionFields converts a session snapshot to status fields.
func SessionFields(sess transport.Session) map[string]any {
	fields := map[string]any{
		"session_id":  sess.ID,
		"port":        sess.Port,
		"state":       sess.State.String(),
		"remote_addr": sess.RemoteAddr,
		"packets_in":  sess.PacketsIn,
		"packets_out": sess.PacketsOut,
		"kicked":      sess.Kicked,
	}
	if !sess.ConnectedAt.IsZero() {
		fields["connected_at"] = sess.ConnectedAt.UTC().Format(time.RFC3339)
		fields["connected_for_ms"] = time.Since(sess.ConnectedAt).Milliseconds()
	}
	return fields
}

// Merge combines several sources. Later sources win on key conflicts.
func Merge(sources ...Source) Source {
	return func() map[string]any {
		out := make(map[string]any)
		for _, src := range sources {
			for k, v := range src() {
				out[k] = v
			}
		}
		return out
	}
}

func acceptParts(accept string) []string {
	var parts []string
	for _, p := range strings.Split(accept, ",") {
		if i := strings.IndexByte(p, ';'); i >= 0 {
			p = p[:i]
		}
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, strings.ToLower(p))
		}
	}
	return parts
}
