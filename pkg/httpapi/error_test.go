package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteError(rec, http.StatusBadRequest, "TRANSFER_INVALID_FILE", "unsupported format", map[string]string{"file": "a.txt"}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "TRANSFER_INVALID_FILE", env.Code)
	require.Equal(t, "a.txt", env.Meta["file"])
}

func TestWriteJSONWithoutPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusNoContent, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Body.Bytes())
	require.NoError(t, WriteJSON(nil, http.StatusOK, "ignored"))
}

func TestMetaSkipsEmptyValues(t *testing.T) {
	require.Equal(t, map[string]string{"request_id": "r1"}, Meta("request_id", "r1", "path", "", "dangling"))
	require.Nil(t, Meta("request_id", ""))
}

func TestAttachmentHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	Attachment(rec, "text/csv", "eam-export-20240101.csv")
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	require.Equal(t, "attachment; filename=eam-export-20240101.csv", rec.Header().Get("Content-Disposition"))
}
