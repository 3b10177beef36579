// Package dataset is the client-side handle for one remote bamboo dataset.
//
// A Dataset is Unbound until Create or Attach gives it an id, Bound while the
// id is live, and Deleted after a successful Delete. Every operation on a
// handle without a live id fails with an apierr invalid-state error before
// anything is sent. Operations whose completion the service signals with a
// flag in the response (delete, calculations, info and row updates) are
// retried under the executor's policy for "dataset.<operation>".
package dataset

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/aponysus/bamboo/apierr"
	"github.com/aponysus/bamboo/classify"
	"github.com/aponysus/bamboo/connection"
	"github.com/aponysus/bamboo/params"
	"github.com/aponysus/bamboo/policy"
	"github.com/aponysus/bamboo/retry"
)

// Policy keys of the retried operations.
const (
	KeyDelete            = "dataset.delete"
	KeyAddCalculation    = "dataset.add_calculation"
	KeyAddAggregation    = "dataset.add_aggregation"
	KeyAddCalculations   = "dataset.add_calculations"
	KeyRemoveCalculation = "dataset.remove_calculation"
	KeySetInfo           = "dataset.set_info"
	KeyUpdateData        = "dataset.update_data"
)

// RetriedKeys lists every policy key used by this package.
func RetriedKeys() []string {
	return []string{
		KeyDelete, KeyAddCalculation, KeyAddAggregation, KeyAddCalculations,
		KeyRemoveCalculation, KeySetInfo, KeyUpdateData,
	}
}

// Dataset is a handle on a remote dataset. Handles are not safe for
// concurrent mutation; many handles may share one Connection.
type Dataset struct {
	id   string
	conn *connection.Connection
	exec *retry.Executor
}

// Option configures a Dataset.
type Option func(*Dataset)

// WithExecutor sets the executor that runs retried operations.
// The default is retry.DefaultExecutor.
func WithExecutor(exec *retry.Executor) Option {
	return func(d *Dataset) {
		if exec != nil {
			d.exec = exec
		}
	}
}

func newDataset(conn *connection.Connection, id string, exec *retry.Executor, opts []Option) *Dataset {
	d := &Dataset{id: id, conn: conn, exec: exec}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.conn == nil {
		d.conn = connection.New("")
	}
	if d.exec == nil {
		d.exec = retry.DefaultExecutor()
	}
	return d
}

// Attach binds a handle to an existing dataset id without a round trip.
func Attach(conn *connection.Connection, id string, opts ...Option) (*Dataset, error) {
	if id == "" {
		return nil, apierr.Creation("attach", "dataset id is empty")
	}
	return newDataset(conn, id, nil, opts), nil
}

// Source describes where the rows of a new dataset come from. Exactly one of
// URL, Path or Content is normally set; a schema alone creates an empty
// dataset with those columns.
type Source struct {
	URL     string
	Path    string
	Content []byte
	// Format of Path or Content: "csv" (default) or "json".
	Format        string
	SchemaPath    string
	SchemaContent []byte
	// NAValues are the cell values the service reads as missing.
	NAValues []string
}

func (s Source) empty() bool {
	return s.URL == "" && s.Path == "" && s.Content == nil &&
		s.SchemaPath == "" && s.SchemaContent == nil
}

// Create uploads src and returns a handle bound to the new dataset.
func Create(ctx context.Context, conn *connection.Connection, src Source, opts ...Option) (*Dataset, error) {
	const op = "create"
	if src.empty() {
		return nil, apierr.Creation(op, "must supply a url, content, schema or file path")
	}
	format := src.Format
	if format == "" {
		format = params.FormatCSV
	}
	if !params.ValidFormat(format) {
		return nil, apierr.Creation(op, "illegal data format %q: must be %q or %q", format, params.FormatCSV, params.FormatJSON)
	}

	req := connection.Request{Method: connection.MethodPost, Path: "/datasets", Form: url.Values{}}
	if src.NAValues != nil {
		na, err := params.MarshalJSON(op, "na_values", src.NAValues)
		if err != nil {
			return nil, err
		}
		req.Form.Set("na_values", na)
	}

	if src.URL != "" {
		req.Form.Set("url", src.URL)
	} else {
		files, err := sourceFiles(src, format)
		if err != nil {
			return nil, err
		}
		req.Files = files
	}

	d := newDataset(conn, "", nil, opts)
	body, err := d.conn.Dispatch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}
	id := body.Get("id").String()
	if id == "" {
		return nil, apierr.Creation(op, "response has no dataset id: %s", body)
	}
	d.id = id

	d.conn.Logger().Info().Str("dataset", id).Msg("dataset created")
	return d, nil
}

func sourceFiles(src Source, format string) ([]connection.File, error) {
	var files []connection.File

	if src.SchemaPath != "" || src.SchemaContent != nil {
		schema, err := readSource(src.SchemaContent, src.SchemaPath)
		if err != nil {
			return nil, err
		}
		files = append(files, connection.File{Field: "schema", Filename: "data.schema.json", Content: schema})
	}

	if src.Path != "" || src.Content != nil {
		data, err := readSource(src.Content, src.Path)
		if err != nil {
			return nil, err
		}
		files = append(files, connection.File{
			Field:    format + "_file",
			Filename: "data." + format,
			Content:  data,
		})
	}
	return files, nil
}

func readSource(content []byte, path string) ([]byte, error) {
	if content != nil {
		return content, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &apierr.Error{Kind: apierr.KindCreation, Op: "create", Field: path, Err: err}
	}
	return b, nil
}

// ID returns the dataset id, or "" for an Unbound or Deleted handle.
func (d *Dataset) ID() string {
	if d == nil {
		return ""
	}
	return d.id
}

// Valid reports whether the handle has a live id.
func (d *Dataset) Valid() bool { return d.ID() != "" }

func (d *Dataset) String() string { return d.ID() }

// Connection returns the connection the handle dispatches through.
func (d *Dataset) Connection() *connection.Connection { return d.conn }

// guard runs fn with the live id, or fails with an invalid-state error
// without running it.
func guard[T any](d *Dataset, op string, fn func(id string) (T, error)) (T, error) {
	if !d.Valid() {
		var zero T
		return zero, apierr.InvalidState(op)
	}
	return fn(d.id)
}

// acknowledged runs dispatch under the policy for key until the response
// satisfies ok. A response that does not is reported to the executor as not
// ready; errors are classified by the policy's mode.
func (d *Dataset) acknowledged(ctx context.Context, key string, req connection.Request, ok func(connection.Body) bool) (bool, error) {
	res := retry.DoValue(ctx, d.exec, policy.ParseKey(key), func(ctx context.Context) (connection.Body, error) {
		body, err := d.conn.Dispatch(ctx, req)
		if err != nil {
			return body, err
		}
		if !ok(body) {
			return body, classify.NotReady(key + ": " + truncate(body.String()))
		}
		return body, nil
	})
	return res.OK, res.Err
}

func truncate(s string) string {
	const max = 200
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

func hasSuccess(b connection.Body) bool { return b.Has("success") }
func hasNoError(b connection.Body) bool { return !b.Has("error") }
func hasID(b connection.Body) bool      { return b.Has("id") }

func datasetPath(id string, parts ...string) string {
	p := "/datasets/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// Delete removes the dataset. On success the handle becomes Deleted.
func (d *Dataset) Delete(ctx context.Context) (bool, error) {
	return guard(d, "delete", func(id string) (bool, error) {
		ok, err := d.acknowledged(ctx, KeyDelete, connection.Request{
			Method: connection.MethodDelete,
			Path:   datasetPath(id),
		}, hasSuccess)
		if ok {
			d.id = ""
			d.conn.Logger().Info().Str("dataset", id).Msg("dataset deleted")
		}
		return ok, err
	})
}

// Version returns the version document of the service holding the dataset.
func (d *Dataset) Version(ctx context.Context) (connection.Body, error) {
	return d.conn.Version(ctx)
}
