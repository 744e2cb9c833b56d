package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"canvasdatasync/target"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"go.uber.org/zap"
)

// LambdaAPI is the subset of the Lambda client used for asynchronous invocation.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaInvoker invokes one function with InvocationType Event (fire and forget).
type LambdaInvoker struct {
	client       LambdaAPI
	functionName string
}

// NewLambdaInvoker creates an asynchronous invoker of the named function.
func NewLambdaInvoker(client LambdaAPI, functionName string) *LambdaInvoker {
	return &LambdaInvoker{client: client, functionName: functionName}
}

// InvokeAsync queues one invocation. Anything other than 202 Accepted is a failure.
func (i *LambdaInvoker) InvokeAsync(ctx context.Context, payload []byte) error {
	out, err := i.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(i.functionName),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("invoking %s failed: %w", i.functionName, err)
	}
	if out.FunctionError != nil {
		return fmt.Errorf("invoking %s failed: function error %s", i.functionName, aws.ToString(out.FunctionError))
	}
	if out.StatusCode != http.StatusAccepted {
		return fmt.Errorf("invoking %s failed: status %d", i.functionName, out.StatusCode)
	}
	return nil
}

// LambdaDispatcher sends download jobs to the downloader function.
type LambdaDispatcher struct {
	invoker *LambdaInvoker
}

// NewLambdaDispatcher creates a dispatcher invoking the named downloader function.
func NewLambdaDispatcher(client LambdaAPI, fetchFunctionName string) *LambdaDispatcher {
	return &LambdaDispatcher{invoker: NewLambdaInvoker(client, fetchFunctionName)}
}

func (d *LambdaDispatcher) Submit(ctx context.Context, req target.FetchRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding the fetch request for %s failed: %w", req.Key, err)
	}
	if err := d.invoker.InvokeAsync(ctx, payload); err != nil {
		return err
	}
	log.Debug("Dispatched fetch", zap.String("key", req.Key), zap.String("function", d.invoker.functionName))
	return nil
}

// LambdaReinvoker starts another instance of the running sync function.
type LambdaReinvoker struct {
	invoker *LambdaInvoker
}

// NewLambdaReinvoker creates a reinvoker of the named (usually the current) function.
func NewLambdaReinvoker(client LambdaAPI, functionName string) *LambdaReinvoker {
	return &LambdaReinvoker{invoker: NewLambdaInvoker(client, functionName)}
}

func (r *LambdaReinvoker) Reinvoke(ctx context.Context, event json.RawMessage) error {
	payload := []byte(event)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if err := r.invoker.InvokeAsync(ctx, payload); err != nil {
		return fmt.Errorf("reinvocation failed: %w", err)
	}
	log.Info("Invoked another instance of the sync function", zap.String("function", r.invoker.functionName))
	return nil
}
