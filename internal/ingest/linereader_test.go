package ingest

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
)

func TestLineReader(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		maxLen    int
		want      []string
		wantLong  int
		wantLines int
	}{
		{
			"normal lines",
			"aaa\nbbb\nccc\n",
			100,
			[]string{"aaa", "bbb", "ccc"}, 0, 3,
		},
		{
			"reports oversized line",
			"short\n" + strings.Repeat("x", 50) + "\nafter\n",
			30,
			[]string{"short", "after"}, 1, 3,
		},
		{
			"oversized last line without newline",
			"short\n" + strings.Repeat("x", 50),
			30,
			[]string{"short"}, 1, 2,
		},
		{
			"empty input",
			"",
			100,
			nil, 0, 0,
		},
		{
			"blank lines skipped",
			"aaa\n\n\nbbb\n",
			100,
			[]string{"aaa", "bbb"}, 0, 4,
		},
		{
			"line without trailing newline",
			"aaa\nbbb",
			100,
			[]string{"aaa", "bbb"}, 0, 2,
		},
		{
			"exact limit kept",
			strings.Repeat("x", 30) + "\n",
			30,
			[]string{strings.Repeat("x", 30)}, 0, 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr := newLineReader(strings.NewReader(tt.input), tt.maxLen)
			var got []string
			long := 0
			for {
				line, err := lr.next()
				if err == io.EOF {
					break
				}
				if errors.Is(err, errLineTooLong) {
					long++
					continue
				}
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				got = append(got, line)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("lines mismatch (-want +got):\n%s", diff)
			}
			if long != tt.wantLong {
				t.Errorf("oversized = %d, want %d", long, tt.wantLong)
			}
			if lr.line() != tt.wantLines {
				t.Errorf("line() = %d, want %d", lr.line(), tt.wantLines)
			}
		})
	}
}

func TestLineReaderReadError(t *testing.T) {
	boom := errors.New("boom")
	lr := newLineReader(iotest.ErrReader(boom), 100)
	if _, err := lr.next(); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
