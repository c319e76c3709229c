package observers

import (
	"context"
	"errors"
	"testing"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
)

func TestNewAllCallbacks_HandlesLifecycle(t *testing.T) {
	h := NewAllCallbacks()
	assert.NotNil(t, h)

	assert.NotPanics(t, func() {
		ctx := einocb.InitCallbacks(context.Background(), &einocb.RunInfo{Name: "router", Component: components.ComponentOfChatModel}, h)
		ctx = einocb.OnStart(ctx, &model.CallbackInput{Messages: []*schema.Message{schema.UserMessage("hi")}})
		einocb.OnEnd(ctx, &model.CallbackOutput{Message: schema.AssistantMessage("hello", nil)})
		einocb.OnError(ctx, errors.New("boom"))

		ctx = einocb.InitCallbacks(context.Background(), &einocb.RunInfo{Name: "list_documents", Component: components.ComponentOfTool}, h)
		ctx = einocb.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: `{}`})
		einocb.OnEnd(ctx, &tool.CallbackOutput{Response: `{"total":0}`})
	})
}

func TestLastUserContent(t *testing.T) {
	msgs := []*schema.Message{schema.UserMessage(" first "), nil, schema.AssistantMessage("a", nil), schema.UserMessage(" second ")}
	assert.Equal(t, "second", lastUserContent(msgs))
	assert.Empty(t, lastUserContent(nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
