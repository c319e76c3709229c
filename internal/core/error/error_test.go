package errx

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	schema := &OutputSchemaError{Reason: "missing rag"}
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"identity", &IdentityRequiredError{}, http.StatusBadRequest},
		{"schema wrapped in execution", &ExecutionError{ThreadID: "EMP001", Node: "route_query", Err: schema}, http.StatusBadGateway},
		{"redis", WrapRedis(errors.New("dial tcp")), http.StatusBadGateway},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
		{"execution", &ExecutionError{ThreadID: "EMP001", Err: errors.New("model down")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestExecutionError_Unwrap(t *testing.T) {
	cause := &ToolLoopLimitError{Node: "hr_node", Limit: 3}
	err := fmt.Errorf("submit: %w", &ExecutionError{ThreadID: "EMP001", Node: "hr_node", Err: cause})

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "hr_node", execErr.Node)

	var loopErr *ToolLoopLimitError
	require.True(t, errors.As(err, &loopErr))
	assert.Equal(t, 3, loopErr.Limit)
	assert.Contains(t, err.Error(), `node "hr_node"`)
}

func TestWrapNotFound(t *testing.T) {
	assert.Nil(t, WrapRedis(nil))
	assert.Nil(t, WrapDB(nil))

	assert.True(t, IsNotFound(WrapRedis(redis.Nil)))
	assert.True(t, IsNotFound(WrapDB(sql.ErrNoRows)))
	assert.False(t, IsNotFound(WrapDB(errors.New("connection reset"))))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(WrapDB(sql.ErrNoRows)))
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "employee_id is required", PublicMessage(&IdentityRequiredError{}))
	assert.Equal(t, "routing classification failed", PublicMessage(&ExecutionError{Err: &OutputSchemaError{Reason: "x"}}))
	assert.Equal(t, SystemErrorMessage, PublicMessage(errors.New("secret detail")))
}
