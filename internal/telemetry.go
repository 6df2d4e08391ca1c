package internal

import (
	"context"
	"sync"
)

// Telemetry hooks for the value engine. The default emitter is a no-op;
// wiring code may register a metrics backend or a test recorder.

type telemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.Mutex
	teleImpl telemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {}
)

// RegisterTelemetryEmitter installs fn as the emitter. nil restores the no-op.
func RegisterTelemetryEmitter(fn telemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emit(ctx context.Context, name string, labels map[string]string, value any) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, name, labels, value)
}

// EmitClassificationFailure counts polymorphic inputs that could not be
// classified.
// name: "hydra_polymorphic_classification_failure" with label {"attribute": "<name>"}
func EmitClassificationFailure(ctx context.Context, attribute string) {
	emit(ctx, "hydra_polymorphic_classification_failure", map[string]string{"attribute": attribute}, int64(1))
}

// EmitCacheFill records entries added to a metadata cache.
// name: "hydra_cache_fill" with label {"cache": "column"|"entity_index"}
func EmitCacheFill(ctx context.Context, cache string, entries int64) {
	emit(ctx, "hydra_cache_fill", map[string]string{"cache": cache}, entries)
}

// EmitJoinCount records how many backend joins a compiled query carries.
// name: "hydra_query_join_count" with label {"entity_table": "<table>"}
func EmitJoinCount(ctx context.Context, entityTable string, joins int) {
	emit(ctx, "hydra_query_join_count", map[string]string{"entity_table": entityTable}, int64(joins))
}
