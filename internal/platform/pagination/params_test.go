package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if params.PageToken != "" {
		t.Fatalf("expected empty page token got %q", params.PageToken)
	}
	if !reflect.DeepEqual(params.Cursor, Cursor{}) {
		t.Fatalf("expected zero cursor, got %#v", params.Cursor)
	}
}

func TestParsePageSize(t *testing.T) {
	opts := Options{DefaultPageSize: 25, MaxPageSize: 40}
	values := url.Values{}
	values.Set("page_size", "30")

	params, err := Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 30 {
		t.Fatalf("expected page size 30 got %d", params.PageSize)
	}

	values.Set("page_size", "400")
	params, err = Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != opts.MaxPageSize {
		t.Fatalf("expected page size clamped to %d got %d", opts.MaxPageSize, params.PageSize)
	}
}

func TestParseInvalidPageSize(t *testing.T) {
	values := url.Values{}
	values.Set("page_size", "abc")

	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize got %v", err)
	}

	values.Set("page_size", "0")
	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize for zero got %v", err)
	}
}

func TestParsePageToken(t *testing.T) {
	cursor := Cursor{StartAfter: []any{"abc", 123}}
	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}

	values := url.Values{}
	values.Set("page_token", token)

	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageToken != token {
		t.Fatalf("expected page token %q got %q", token, params.PageToken)
	}
	if got := len(params.Cursor.StartAfter); got != len(cursor.StartAfter) {
		t.Fatalf("expected cursor length %d got %d", len(cursor.StartAfter), got)
	}
	if s, ok := params.Cursor.StartAfter[0].(string); !ok || s != "abc" {
		t.Fatalf("expected first cursor value %q got %#v", "abc", params.Cursor.StartAfter[0])
	}
	if fmt.Sprint(params.Cursor.StartAfter[1]) != "123" {
		t.Fatalf("expected numeric cursor value %q got %#v", "123", params.Cursor.StartAfter[1])
	}
}

func TestParseInvalidPageToken(t *testing.T) {
	values := url.Values{}
	values.Set("page_token", "!!!invalid!!!")

	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken got %v", err)
	}
}

func TestEncodeDecodeToken(t *testing.T) {
	cursor := Cursor{StartAfter: []any{"id-1"}, StartAt: []any{123}}
	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	decoded, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if got := len(decoded.StartAfter); got != len(cursor.StartAfter) {
		t.Fatalf("expected startAfter length %d got %d", len(cursor.StartAfter), got)
	}
	if s, ok := decoded.StartAfter[0].(string); !ok || s != "id-1" {
		t.Fatalf("expected first cursor value %q got %#v", "id-1", decoded.StartAfter[0])
	}
	if got := len(decoded.StartAt); got != len(cursor.StartAt) {
		t.Fatalf("expected startAt length %d got %d", len(cursor.StartAt), got)
	}
	if fmt.Sprint(decoded.StartAt[0]) != "123" {
		t.Fatalf("expected numeric startAt value %q got %#v", "123", decoded.StartAt[0])
	}

	emptyToken, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken for empty cursor returned error: %v", err)
	}
	if emptyToken != "" {
		t.Fatalf("expected empty token got %q", emptyToken)
	}
}

func TestDecodeTokenInvalid(t *testing.T) {
	if _, err := DecodeToken("not-base64"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken got %v", err)
	}
}

func TestFromRequest(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "/?page_size=20", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	params, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.PageSize != 20 {
		t.Fatalf("expected page size 20 got %d", params.PageSize)
	}
}

func TestMust(t *testing.T) {
	ensured := Must(Params{})
	if ensured.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, ensured.PageSize)
	}

	ensured = Must(Params{PageSize: 15})
	if ensured.PageSize != 15 {
		t.Fatalf("expected page size 15 got %d", ensured.PageSize)
	}
}
