package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// responseRecorder holds the status and body back from the client until
// flush, so a response can be checked and replaced.
type responseRecorder struct {
	gin.ResponseWriter
	body   bytes.Buffer
	status int
}

func newResponseRecorder(w gin.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w}
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
}

func (r *responseRecorder) WriteHeaderNow() {
	r.WriteHeader(http.StatusOK)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	r.WriteHeader(http.StatusOK)
	return r.body.Write(data)
}

func (r *responseRecorder) WriteString(s string) (int, error) {
	return r.Write([]byte(s))
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) Size() int { return r.body.Len() }

func (r *responseRecorder) Written() bool { return r.status != 0 }

// replaceJSON discards whatever was recorded and records payload instead.
func (r *responseRecorder) replaceJSON(status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{"code":"` + CodeOpenAPIResponseInvalid + `","message":"` + responseContractMessage + `"}`)
	}
	r.status = status
	r.body.Reset()
	r.Header().Set("Content-Type", "application/json; charset=utf-8")
	r.body.Write(data)
}

func (r *responseRecorder) flush() error {
	r.ResponseWriter.WriteHeader(r.Status())
	if r.body.Len() == 0 {
		return nil
	}
	_, err := r.ResponseWriter.Write(r.body.Bytes())
	return err
}
