package parser

import (
	"testing"
)

func TestClassifyKinds(t *testing.T) {
	tests := []struct {
		name string
		body string
		page int
		want Kind
	}{
		{
			name: "empty object literal",
			body: "{}",
			page: 1,
			want: EmptyText,
		},
		{
			name: "short body",
			body: "  \n",
			page: 1,
			want: EmptyText,
		},
		{
			name: "invalid json",
			body: `{"QWGJK": [`,
			page: 1,
			want: ParseError,
		},
		{
			name: "html error page",
			body: "<html><body>error</body></html>",
			page: 1,
			want: ParseError,
		},
		{
			name: "null payload",
			body: "null ",
			page: 1,
			want: EmptyStructure,
		},
		{
			name: "empty array",
			body: "[]   ",
			page: 1,
			want: EmptyStructure,
		},
		{
			name: "missing payload key",
			body: `{"RESULT": {"CODE": "INFO-200"}}`,
			page: 1,
			want: Malformed,
		},
		{
			name: "payload key with empty list",
			body: `{"QWGJK": []}`,
			page: 2,
			want: EmptyStructure,
		},
		{
			name: "elements without rows",
			body: `{"QWGJK": [{"head": [{"list_total_count": 10}]}, {"row": []}]}`,
			page: 1,
			want: EmptyStructure,
		},
		{
			name: "valid page",
			body: `{"QWGJK": [{"head": [{"list_total_count": 2}]}, {"row": [{"acnt_nm": "a"}, {"acnt_nm": "b"}]}]}`,
			page: 1,
			want: Valid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify([]byte(tt.body), DefaultPayloadKey, tt.page)
			if got.Kind != tt.want {
				t.Fatalf("Classify() kind = %v, want %v", got.Kind, tt.want)
			}
		})
	}
}

func TestClassifyRowsConcatenated(t *testing.T) {
	body := `{"QWGJK": [
		{"head": [{"list_total_count": 3}, {"RESULT": {"CODE": "INFO-000"}}]},
		{"row": [{"acnt_nm": "a"}, {"acnt_nm": "b"}]},
		{"row": [{"acnt_nm": "c"}]}
	]}`

	got := Classify([]byte(body), DefaultPayloadKey, 1)
	if got.Kind != Valid {
		t.Fatalf("kind = %v, want Valid", got.Kind)
	}
	if len(got.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(got.Rows))
	}
	names := []string{"a", "b", "c"}
	for i, want := range names {
		if got.Rows[i]["acnt_nm"] != want {
			t.Fatalf("row %d acnt_nm = %v, want %q", i, got.Rows[i]["acnt_nm"], want)
		}
	}
	if got.TotalCount == nil || *got.TotalCount != 3 {
		t.Fatalf("total count = %v, want 3", got.TotalCount)
	}
}

func TestClassifyTotalCount(t *testing.T) {
	tests := []struct {
		name string
		body string
		page int
		want *int
	}{
		{
			name: "numeric total on page one",
			body: `{"QWGJK": [{"head": [{"list_total_count": 120}]}, {"row": [{"x": "1"}]}]}`,
			page: 1,
			want: intPtr(120),
		},
		{
			name: "string total on page one",
			body: `{"QWGJK": [{"head": [{"list_total_count": "120"}]}, {"row": [{"x": "1"}]}]}`,
			page: 1,
			want: intPtr(120),
		},
		{
			name: "ignored on later pages",
			body: `{"QWGJK": [{"head": [{"list_total_count": 120}]}, {"row": [{"x": "1"}]}]}`,
			page: 2,
			want: nil,
		},
		{
			name: "absent head",
			body: `{"QWGJK": [{"row": [{"x": "1"}]}]}`,
			page: 1,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify([]byte(tt.body), DefaultPayloadKey, tt.page)
			if (got.TotalCount == nil) != (tt.want == nil) {
				t.Fatalf("total count = %v, want %v", got.TotalCount, tt.want)
			}
			if tt.want != nil && *got.TotalCount != *tt.want {
				t.Fatalf("total count = %d, want %d", *got.TotalCount, *tt.want)
			}
		})
	}
}

func intPtr(n int) *int {
	return &n
}
