package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mivius/automaton/internal/model"
)

func TestRemoteExecutor(t *testing.T) {
	t.Run("Round Trip", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var req Request
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "Summarize open tasks", req.Prompt)
			assert.Equal(t, "auto-1", req.AutomationID)

			json.NewEncoder(w).Encode(Result{
				Success: true,
				Message: "summary posted",
				Operations: model.Operations{
					{Type: "post_summary", Summary: "Posted daily digest", Status: model.OperationApplied},
				},
				ExecutionTimeMs: 1200,
				LogID:           "remote-log-1",
			})
		}))
		defer server.Close()

		exec, err := NewRemoteExecutor(RemoteConfig{URL: server.URL}, zap.NewNop())
		require.NoError(t, err)

		result, err := exec.Execute(context.Background(), Request{Prompt: "Summarize open tasks", AutomationID: "auto-1"})
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "summary posted", result.Message)
		assert.Equal(t, "remote-log-1", result.LogID)
		require.Len(t, result.Operations, 1)
		assert.Equal(t, "post_summary", result.Operations[0].Type)
	})

	t.Run("Error Status Is Hard Failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "executor crashed", http.StatusInternalServerError)
		}))
		defer server.Close()

		exec, err := NewRemoteExecutor(RemoteConfig{URL: server.URL}, zap.NewNop())
		require.NoError(t, err)

		result, err := exec.Execute(context.Background(), Request{Prompt: "anything"})
		assert.Error(t, err)
		assert.Nil(t, result)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("Soft Failure Passes Through", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(Result{Success: false, Message: "no matching records"})
		}))
		defer server.Close()

		exec, err := NewRemoteExecutor(RemoteConfig{URL: server.URL}, zap.NewNop())
		require.NoError(t, err)

		result, err := exec.Execute(context.Background(), Request{Prompt: "anything"})
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "no matching records", result.Message)
	})

	t.Run("Requires URL", func(t *testing.T) {
		_, err := NewRemoteExecutor(RemoteConfig{}, zap.NewNop())
		assert.Error(t, err)
	})
}
