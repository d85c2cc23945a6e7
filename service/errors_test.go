package service

import (
	"context"
	"fmt"
	"net/url"
	"testing"
)

func TestPermanent(t *testing.T) {
	err := fmt.Errorf("permanent error")
	if Temporary(err) {
		t.Fail()
	}
	err = &url.Error{Err: err}
	if Temporary(err) {
		t.Fail()
	}
}

func TestTemporary(t *testing.T) {
	err := MakeTemporary(fmt.Errorf("temporary error"))
	if !Temporary(err) {
		t.Fail()
	}
	err = fmt.Errorf("wrap: %w", err)
	if !Temporary(err) {
		t.Fail()
	}
	if !Temporary(context.Canceled) {
		t.Fail()
	}
	if !Temporary(context.DeadlineExceeded) {
		t.Fail()
	}
	err = fmt.Errorf("wrap: %w", &url.Error{Err: err})
	if !Temporary(err) {
		t.Fail()
	}
}

func TestFatal(t *testing.T) {
	err := fmt.Errorf("some error")
	if Fatal(err) {
		t.Fail()
	}
	err = MakeFatal(err)
	if !Fatal(err) {
		t.Fail()
	}
	err = fmt.Errorf("wrap: %w", err)
	if !Fatal(err) {
		t.Fail()
	}
}

func TestUnauthorized(t *testing.T) {
	err := error(ErrUnauthorized{Provider: "copernicus"})
	if !Fatal(err) {
		t.Errorf("rejected credentials must be fatal")
	}
	if Temporary(err) {
		t.Errorf("rejected credentials must not be temporary")
	}
	err = fmt.Errorf("Catalog.%w", err)
	if !Fatal(err) {
		t.Errorf("fatality must survive wrapping")
	}
}

func TestStatusCodes(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !TemporaryStatusCode(code) {
			t.Errorf("%d must be temporary", code)
		}
	}
	for _, code := range []int{200, 400, 401, 404} {
		if TemporaryStatusCode(code) {
			t.Errorf("%d must not be temporary", code)
		}
	}
	if !UnauthorizedStatusCode(401) || !UnauthorizedStatusCode(403) {
		t.Fail()
	}
	if UnauthorizedStatusCode(404) {
		t.Fail()
	}
}
