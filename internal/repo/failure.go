package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/bistrohq/bistro-backend/pkg/db"
	pkgerrors "github.com/bistrohq/bistro-backend/pkg/errors"
	"github.com/bistrohq/bistro-backend/pkg/logger"
)

// Op describes the operation a storage call was made for.
type Op struct {
	Name     string
	EntityID uuid.UUID
	Inputs   map[string]any
}

func (o Op) fields() map[string]any {
	fields := map[string]any{"operation": o.Name}
	if o.EntityID != uuid.Nil {
		fields["entity_id"] = o.EntityID.String()
	}
	for k, v := range o.Inputs {
		fields["input_"+k] = v
	}
	return fields
}

// StorageFailure turns an error returned from a unit of work into one the caller
// can act on. Typed errors pass through. Serialization failures and deadlocks
// become ConcurrentModification; anything else becomes a dependency failure and
// is logged with the operation, entity id and inputs.
func StorageFailure(ctx context.Context, logg *logger.Logger, op Op, err error, msg string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}

	code := pkgerrors.CodeDependency
	if db.IsSerializationFailure(err) {
		code = pkgerrors.CodeConcurrentModification
	}
	wrapped := pkgerrors.Wrap(code, err, msg)

	if logg != nil {
		logCtx := logg.WithFields(ctx, op.fields())
		logCtx = logg.WithFields(logCtx, pkgerrors.Dump(err).Fields())
		if code == pkgerrors.CodeConcurrentModification {
			logg.Warn(logCtx, msg)
		} else {
			logg.Error(logCtx, msg, err)
		}
	}
	return wrapped
}
