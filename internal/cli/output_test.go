package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/initiative/internal/entity"
	"github.com/roach88/initiative/internal/medium"
	"github.com/roach88/initiative/internal/queue"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("NOT_FOUND", "no record encounters/enc-1", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "no record encounters/enc-1", resp.Error.Message)
	assert.Nil(t, resp.Error.Details)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("VALIDATION", "userId is required", "ignored without --verbose")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [VALIDATION]")
	assert.Contains(t, buf.String(), "userId is required")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error("VALIDATION", "userId is required", map[string]string{"kind": "encounters"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("%d %s", 2, "encounters")

			assert.Empty(t, out.String(), "verbose output must not corrupt stdout")
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "2 encounters")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantExit int
	}{
		{
			name:     "entity quota",
			err:      &entity.Error{Code: entity.ErrCodeQuotaExceeded, Err: medium.ErrQuotaExceeded},
			wantCode: "QUOTA_EXCEEDED",
			wantExit: ExitQuotaExceeded,
		},
		{
			name:     "queue quota",
			err:      &queue.Error{Code: queue.ErrCodeQuotaExceeded, Err: medium.ErrQuotaExceeded},
			wantCode: "QUOTA_EXCEEDED",
			wantExit: ExitQuotaExceeded,
		},
		{
			name:     "bare medium quota",
			err:      fmt.Errorf("write: %w", medium.ErrQuotaExceeded),
			wantCode: "QUOTA_EXCEEDED",
			wantExit: ExitQuotaExceeded,
		},
		{
			name:     "validation",
			err:      &entity.Error{Code: entity.ErrCodeValidation, Message: "userId is required"},
			wantCode: "VALIDATION",
			wantExit: ExitFailure,
		},
		{
			name:     "conflict",
			err:      &entity.Error{Code: entity.ErrCodeConflict},
			wantCode: "CONFLICT",
			wantExit: ExitFailure,
		},
		{
			name:     "entity storage",
			err:      &entity.Error{Code: entity.ErrCodeStorage, Err: errors.New("disk I/O error")},
			wantCode: "STORAGE",
			wantExit: ExitCommandError,
		},
		{
			name:     "queue not found",
			err:      &queue.Error{Code: queue.ErrCodeNotFound},
			wantCode: "NOT_FOUND",
			wantExit: ExitFailure,
		},
		{
			name:     "queue storage",
			err:      &queue.Error{Code: queue.ErrCodeStorage, Err: errors.New("locked")},
			wantCode: "STORAGE",
			wantExit: ExitCommandError,
		},
		{
			name:     "unknown",
			err:      errors.New("boom"),
			wantCode: ErrCodeGeneric,
			wantExit: ExitCommandError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, exit := classify(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantExit, exit)
		})
	}
}

func TestOutputFormatter_FailQuota(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}

	err := formatter.Fail("save encounters/enc-1", &entity.Error{
		Code:    entity.ErrCodeQuotaExceeded,
		Message: "storage full",
		Err:     medium.ErrQuotaExceeded,
	})
	require.Error(t, err)
	assert.Equal(t, ExitQuotaExceeded, GetExitCode(err))
	assert.ErrorIs(t, err, medium.ErrQuotaExceeded)
	assert.Contains(t, out.String(), "Error [QUOTA_EXCEEDED]: save encounters/enc-1")
	assert.Contains(t, errOut.String(), "local storage is full")
}

func TestOutputFormatter_FailJSONDetails(t *testing.T) {
	out := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out}

	err := formatter.Fail("enqueue", &queue.Error{Code: queue.ErrCodeQuotaExceeded, Err: medium.ErrQuotaExceeded})
	require.Error(t, err)

	status, _, cliErr := decodeResponse(t, out.String())
	assert.Equal(t, "error", status)
	require.NotNil(t, cliErr)
	assert.Equal(t, "QUOTA_EXCEEDED", cliErr.Code)
	assert.NotNil(t, cliErr.Details)
}

func TestExitError(t *testing.T) {
	cause := errors.New("no such table")
	err := WrapExitError(ExitCommandError, "failed to open storage", cause)
	assert.Equal(t, "failed to open storage: no such table", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	plain := NewExitError(ExitFailure, "1 scenario(s) failed")
	assert.Equal(t, "1 scenario(s) failed", plain.Error())
	assert.Nil(t, plain.Unwrap())

	assert.Equal(t, ExitFailure, GetExitCode(errors.New("unwrapped")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("outer: %w", err)))
}
