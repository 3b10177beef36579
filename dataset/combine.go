package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/aponysus/bamboo/apierr"
	"github.com/aponysus/bamboo/connection"
	"github.com/aponysus/bamboo/params"
)

// Merge creates a new dataset holding the rows of every input, in order.
// The inputs are not modified. A nil conn uses the first input's connection.
func Merge(ctx context.Context, conn *connection.Connection, datasets []*Dataset, opts ...Option) (*Dataset, error) {
	const op = "merge"
	if len(datasets) < 2 {
		return nil, apierr.Validation(op, "datasets", "at least two datasets are required, got %d", len(datasets))
	}
	ids := make([]string, 0, len(datasets))
	for i, ds := range datasets {
		if !ds.Valid() {
			return nil, &apierr.Error{Kind: apierr.KindInvalidState, Op: op, Field: fmt.Sprintf("datasets[%d]", i), Message: "dataset does not exist"}
		}
		ids = append(ids, ds.id)
	}
	if conn == nil {
		conn = datasets[0].conn
	}

	list, err := params.MarshalJSON(op, "dataset_ids", ids)
	if err != nil {
		return nil, err
	}
	return combine(ctx, conn, op, datasets[0], connection.Request{
		Method: connection.MethodPost,
		Path:   "/datasets/merge",
		Form:   map[string][]string{"dataset_ids": {list}},
	}, opts)
}

// Join creates a new dataset from left with the columns of right added on
// rows whose on column matches. on must exist in both and be unique in right.
// The inputs are not modified. A nil conn uses left's connection.
func Join(ctx context.Context, conn *connection.Connection, left, right *Dataset, on string, opts ...Option) (*Dataset, error) {
	const op = "join"
	if !left.Valid() {
		return nil, &apierr.Error{Kind: apierr.KindInvalidState, Op: op, Field: "left", Message: "dataset does not exist"}
	}
	if !right.Valid() {
		return nil, &apierr.Error{Kind: apierr.KindInvalidState, Op: op, Field: "right", Message: "dataset does not exist"}
	}
	if strings.TrimSpace(on) == "" {
		return nil, apierr.Validation(op, "on", "join column must not be empty")
	}
	if conn == nil {
		conn = left.conn
	}

	return combine(ctx, conn, op, left, connection.Request{
		Method: connection.MethodPost,
		Path:   "/datasets/join",
		Form: map[string][]string{
			"dataset_id":       {left.id},
			"other_dataset_id": {right.id},
			"on":               {on},
		},
	}, opts)
}

func combine(ctx context.Context, conn *connection.Connection, op string, first *Dataset, req connection.Request, opts []Option) (*Dataset, error) {
	body, err := conn.Dispatch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s datasets: %w", op, err)
	}
	id := body.Get("id").String()
	if id == "" {
		return nil, apierr.Creation(op, "response has no dataset id: %s", body)
	}
	conn.Logger().Info().Str("dataset", id).Str("op", op).Msg("dataset created")
	return newDataset(conn, id, first.exec, opts), nil
}
