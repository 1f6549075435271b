package logx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarning)
	l.Debugf("ignored")
	assert.Empty(t, buf.String())
	l.Warnf("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestChannelDisabledByDefault(t *testing.T) {
	l := New(nil, LevelError)
	assert.False(t, l.ChannelEnabled(ChannelCompilationErrorXml))
	l.Channelf(ChannelCompilationErrorXml, "<x/>")
}

func TestChannelEnable(t *testing.T) {
	var buf bytes.Buffer
	l := New(nil, LevelError)
	l.EnableChannel(ChannelCompilationErrorXml, &buf)
	assert.True(t, l.ChannelEnabled(ChannelCompilationErrorXml))
	l.Channelf(ChannelCompilationErrorXml, "<checkstyle/>")
	assert.Equal(t, "<checkstyle/>", buf.String())

	l.EnableChannel(ChannelCompilationErrorXml, nil)
	assert.False(t, l.ChannelEnabled(ChannelCompilationErrorXml))
}
