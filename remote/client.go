package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mixa1334/ProductApp/circuitbreaker"
	"github.com/mixa1334/ProductApp/config"
	"github.com/mixa1334/ProductApp/middleware"
	"github.com/mixa1334/ProductApp/models"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	tracerName      = "product-console"
	maxResponseBody = 4 << 20
)

// Error is a non-2xx answer from the record service.
type Error struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: record service returned status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: record service returned status %d: %s", e.Operation, e.StatusCode, e.Message)
}

// Client calls the record service over HTTP. Each operation is a POST to
// {baseURL}/{operation} carrying the operation's named parameters as JSON.
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.Logger
}

var _ RecordService = (*Client)(nil)

func InitClient(cfg config.Remote, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "failed to configure record service client")
	}

	cb := circuitbreaker.NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout)
	cb.OnStateChange(func(from, to circuitbreaker.State) {
		middleware.RecordBreakerState(int(to))
		logger.Warn("Record service circuit breaker changed state",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	})

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		token:          cfg.Token,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: cb,
		logger:         logger,
	}, nil
}

func (c *Client) GetProducts(ctx context.Context, searchName string) ([]models.Product, error) {
	var products []models.Product
	if err := c.call(ctx, OpGetProducts, getProductsRequest{SearchName: searchName}, &products,
		attribute.String("product.search", searchName),
	); err != nil {
		return nil, err
	}
	if products == nil {
		products = []models.Product{}
	}
	return products, nil
}

func (c *Client) CreateProduct(ctx context.Context, newProduct models.Product) error {
	return c.call(ctx, OpCreateProduct, createProductRequest{NewProduct: newProduct}, nil)
}

func (c *Client) EditProduct(ctx context.Context, editedProduct models.Product) error {
	return c.call(ctx, OpEditProduct, editProductRequest{EditedProduct: editedProduct}, nil,
		attribute.String("product.id", editedProduct.ID),
	)
}

func (c *Client) DeleteProduct(ctx context.Context, productID string) error {
	return c.call(ctx, OpDeleteProduct, deleteProductRequest{ProductID: productID}, nil,
		attribute.String("product.id", productID),
	)
}

func (c *Client) GetProductTypes(ctx context.Context) ([]string, error) {
	var types []string
	if err := c.call(ctx, OpGetProductTypes, struct{}{}, &types); err != nil {
		return nil, err
	}
	return types, nil
}

func (c *Client) call(ctx context.Context, op string, in, out any, attrs ...attribute.KeyValue) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attrs...)

	start := time.Now()
	var callErr error
	err := c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		callErr = c.do(ctx, op, in, out)
		// A rejected request says nothing about the service's health.
		var remoteErr *Error
		if errors.As(callErr, &remoteErr) && remoteErr.StatusCode < http.StatusInternalServerError {
			return nil
		}
		// Neither does a call abandoned by its caller.
		if errors.Is(callErr, context.Canceled) || ctx.Err() != nil {
			return nil
		}
		return callErr
	})
	if err == nil {
		err = callErr
	}
	middleware.RecordRemoteCall(op, err, time.Since(start))

	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			span.SetAttributes(attribute.String("circuit.state", "open"))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	c.logger.Debug("Record service call succeeded",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("operation", op),
		zap.Duration("latency", time.Since(start)),
	)
	return nil
}

func (c *Client) do(ctx context.Context, op string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return errors.Wrapf(err, "%s: failed to marshal request", op)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+op, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrapf(err, "%s: failed to build request", op)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s: request failed", op)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return errors.Wrapf(err, "%s: failed to read response", op)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Operation: op, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "%s: failed to decode response", op)
	}
	return nil
}

// errorMessage extracts a readable message from an error body. The service
// answers either {"error": "..."} or a list of {"message": "..."} entries.
func errorMessage(body []byte) string {
	var single struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &single); err == nil {
		if single.Error != "" {
			return single.Error
		}
		if single.Message != "" {
			return single.Message
		}
	}

	var list []struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &list); err == nil {
		messages := make([]string, 0, len(list))
		for _, item := range list {
			if item.Message != "" {
				messages = append(messages, item.Message)
			}
		}
		if len(messages) > 0 {
			return strings.Join(messages, "; ")
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
