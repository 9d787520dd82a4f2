package cli

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonBlockingReader_ReadLine(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedValue string
		expectError   bool
	}{
		{name: "successful read", input: "u\n", expectedValue: "u"},
		{name: "extra whitespace", input: "  1,3  \n", expectedValue: "1,3"},
		{name: "empty line", input: "\n", expectedValue: ""},
		{name: "last line without newline", input: "all", expectedValue: "all"},
		{name: "no input", input: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nbr := NewNonBlockingReader(strings.NewReader(tt.input))
			result, err := nbr.ReadLine(context.Background())
			if tt.expectError {
				assert.ErrorIs(t, err, io.EOF)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedValue, result)
		})
	}
}

func TestNonBlockingReader_ContextCancellation(t *testing.T) {
	t.Run("already canceled", func(t *testing.T) {
		nbr := NewNonBlockingReader(strings.NewReader("ignored\n"))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := nbr.ReadLine(ctx)
		assert.ErrorIs(t, err, ErrInputCancelled)
	})

	t.Run("deadline during read keeps the late line", func(t *testing.T) {
		pr, pw := io.Pipe()
		defer func() { _ = pr.Close() }()
		nbr := NewNonBlockingReader(pr)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := nbr.ReadLine(ctx)
		assert.ErrorIs(t, err, ErrInputCancelled)

		go func() { _, _ = pw.Write([]byte("late\n")) }()

		line, err := nbr.ReadLine(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "late", line)
	})
}

func TestNonBlockingReader_MultipleReads(t *testing.T) {
	nbr := NewNonBlockingReader(strings.NewReader("line1\nline2\nline3\n"))
	ctx := context.Background()

	for _, want := range []string{"line1", "line2", "line3"} {
		got, err := nbr.ReadLine(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
