package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetLevel("info")
		SetOutput(os.Stdout)
	})

	SetLevel("warn")
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 2")

	SetLevel("debug")
	With("stock", "300033").Debug("tick")
	assert.Contains(t, buf.String(), "stock=300033")
}

func TestInfoBlock(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })

	InfoBlock("  \n ")
	assert.Empty(t, buf.String())
	InfoBlock("a\nb")
	assert.Contains(t, buf.String(), "msg=a")
	assert.Contains(t, buf.String(), "msg=b")
}
