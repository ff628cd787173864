package debugcon

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"corekernel/src/fdops"
)

func TestConsoleWritePrefixesModule(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	defer SetSink(nil)

	var c Console
	n, err := c.Write(context.Background(), fdops.MkUseriobuf([]byte("hello\n")))
	if err != 0 || n != 6 {
		t.Fatalf("Write = (%d, %v), want (6, 0)", n, err)
	}
	if got := buf.String(); !strings.Contains(got, "[user] hello") {
		t.Fatalf("console output = %q, want it to contain %q", got, "[user] hello")
	}
}

func TestConsoleReadIsAlwaysEmpty(t *testing.T) {
	var c Console
	n, err := c.Read(context.Background(), fdops.MkUseriobuf(make([]byte, 16)))
	if n != 0 || err != 0 {
		t.Fatalf("Read = (%d, %v), want (0, 0)", n, err)
	}
}

func TestPrintfWritesModulePrefixedLine(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	defer SetSink(nil)

	Printf("vm", "fault at %#x\n", 0x1000)
	if got := buf.String(); got != "[vm] fault at 0x1000\n" {
		t.Fatalf("Printf output = %q, want %q", got, "[vm] fault at 0x1000\n")
	}
}

func TestDevnullDiscardsWritesAndReadsEOF(t *testing.T) {
	var d Devnull
	n, err := d.Write(context.Background(), fdops.MkUseriobuf([]byte("discarded")))
	if n != 9 || err != 0 {
		t.Fatalf("Write = (%d, %v), want (9, 0)", n, err)
	}
	n, err = d.Read(context.Background(), fdops.MkUseriobuf(make([]byte, 4)))
	if n != 0 || err != 0 {
		t.Fatalf("Read = (%d, %v), want (0, 0)", n, err)
	}
}
