/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package main

import (
	"testing"
	"time"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cowdogmoo/imagecore/pkg/layerfetch"
)

func TestPrintComposeProgressDrainsAndTerminates(t *testing.T) {
	events := make(chan layerfetch.Event, 4)
	bytesCh := make(chan layerfetch.ByteProgress, 4)
	done := make(chan struct{})

	go printComposeProgress(events, bytesCh, done)

	events <- layerfetch.Event{Layer: layerfetch.LayerState{Layer: v1.Descriptor{Digest: "sha256:abc"}}, Completed: false}
	bytesCh <- layerfetch.ByteProgress{LayerIndex: 0, Fetched: 10, Total: 100}
	events <- layerfetch.Event{Layer: layerfetch.LayerState{Layer: v1.Descriptor{Digest: "sha256:abc"}}, Completed: true}

	close(events)
	close(bytesCh)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("printComposeProgress did not terminate after both channels closed")
	}
}
