/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package buffer

import (
	"strings"
	"testing"
)

func TestReadFillAccumulatesAndAdvanceConsumes(t *testing.T) {
	r := NewRead(0)
	src := strings.NewReader("hello world")
	n, err := r.Fill(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len("hello world") {
		t.Fatalf("filled %d bytes, want %d", n, len("hello world"))
	}
	if string(r.Bytes()) != "hello world" {
		t.Fatalf("Bytes() = %q", r.Bytes())
	}
	r.Advance(6)
	if string(r.Bytes()) != "world" {
		t.Fatalf("Bytes() after Advance = %q", r.Bytes())
	}
	if r.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", r.Len())
	}
}

func TestReadAdvancePastFilledPanics(t *testing.T) {
	r := NewRead(0)
	_, _ = r.Fill(strings.NewReader("ab"))
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic advancing past the filled region")
		}
	}()
	r.Advance(100)
}

func TestReadCompactShiftsUnreadTail(t *testing.T) {
	r := NewRead(0)
	_, _ = r.Fill(strings.NewReader(strings.Repeat("x", initialSize)))
	r.Advance(initialSize - 3)
	r.Compact()
	if r.Len() != 3 {
		t.Fatalf("Len() after Compact = %d, want 3", r.Len())
	}
	if string(r.Bytes()) != "xxx" {
		t.Fatalf("Bytes() after Compact = %q", r.Bytes())
	}
}

func TestReadGrowRespectsMaxSize(t *testing.T) {
	r := NewRead(MinSize)
	err := r.Grow(r.MaxSize() * 2)
	if err != ErrTooLarge {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestReadMaxSizeFloorsAtMinSize(t *testing.T) {
	r := NewRead(1)
	if r.MaxSize() != MinSize {
		t.Fatalf("MaxSize() = %d, want the MinSize floor %d", r.MaxSize(), MinSize)
	}
}

func TestReadExceedsMax(t *testing.T) {
	r := NewRead(MinSize)
	if r.ExceedsMax(MinSize) {
		t.Fatalf("ExceedsMax(MinSize) should be false, equal is not exceeding")
	}
	if !r.ExceedsMax(MinSize + 1) {
		t.Fatalf("ExceedsMax(MinSize+1) should be true")
	}
}

func TestReadResetDiscardsBufferedData(t *testing.T) {
	r := NewRead(0)
	_, _ = r.Fill(strings.NewReader("leftover"))
	r.Reset()
	if r.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", r.Len())
	}
}
