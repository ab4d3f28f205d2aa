package script

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"call-agent/internal/apperr"
)

type fakeGenerator struct {
	reply  Reply
	err    error
	calls  int
	system string
	user   string
}

func (f *fakeGenerator) Generate(_ context.Context, system, user string) (Reply, error) {
	f.calls++
	f.system, f.user = system, user
	return f.reply, f.err
}

func validBrief() Brief {
	return Brief{CustomerName: "Jordan", Goal: "Book a demo", Product: "Nimbus CRM"}
}

func TestNewClient_NilGenerator(t *testing.T) {
	_, err := NewClient(nil, nil)
	require.Error(t, err)
}

func TestGenerate_ValidationSkipsCollaborator(t *testing.T) {
	cases := []Brief{
		{Goal: "Book a demo", Product: "Nimbus CRM"},
		{CustomerName: "Jordan", Product: "Nimbus CRM"},
		{CustomerName: "Jordan", Goal: "Book a demo", Product: "  "},
	}
	for _, b := range cases {
		gen := &fakeGenerator{reply: Reply{OutputText: "Agent: hi"}}
		c, err := NewClient(gen, nil)
		require.NoError(t, err)

		_, err = c.Generate(context.Background(), b)
		require.True(t, apperr.IsKind(err, apperr.KindValidation), "brief=%+v err=%v", b, err)
		require.Equal(t, 0, gen.calls)
	}
}

func TestGenerate_ReturnsTextUnchanged(t *testing.T) {
	want := "Agent: Hi Jordan, this is Sam from Nimbus CRM.\nCustomer: Hi.\nAgent: Could we book a demo?"
	gen := &fakeGenerator{reply: Reply{OutputText: "\n  " + want + "  \n"}}
	c, _ := NewClient(gen, nil)

	got, err := c.Generate(context.Background(), validBrief())
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, 1, gen.calls)
}

func TestGenerate_ConcatenatesFragments(t *testing.T) {
	gen := &fakeGenerator{reply: Reply{Output: []ReplyItem{
		{Content: []ReplyFragment{{Type: "output_text", Text: "Agent: Hi Jordan. "}, {Type: "output_text", Text: "Customer: Hello."}}},
		{Content: []ReplyFragment{{Type: "output_text", Text: "\nAgent: Bye."}}},
	}}}
	c, _ := NewClient(gen, nil)

	got, err := c.Generate(context.Background(), validBrief())
	require.NoError(t, err)
	require.Equal(t, "Agent: Hi Jordan. Customer: Hello.\nAgent: Bye.", got)
}

func TestGenerate_EmptyReply(t *testing.T) {
	for _, reply := range []Reply{{}, {OutputText: "   "}, {Output: []ReplyItem{{Content: []ReplyFragment{{Text: " \n"}}}}}} {
		c, _ := NewClient(&fakeGenerator{reply: reply}, nil)
		_, err := c.Generate(context.Background(), validBrief())
		require.True(t, apperr.IsKind(err, apperr.KindEmptyGeneration), "reply=%+v err=%v", reply, err)
		require.Equal(t, apperr.MsgScriptFailed, apperr.ScriptMessage(err))
	}
}

func TestGenerate_ProviderError(t *testing.T) {
	upstream := errors.New("401 unauthorized")
	c, _ := NewClient(&fakeGenerator{err: upstream}, nil)

	_, err := c.Generate(context.Background(), validBrief())
	require.True(t, apperr.IsKind(err, apperr.KindProvider))
	require.ErrorIs(t, err, upstream)
}

func TestGenerate_PromptCarriesBrief(t *testing.T) {
	gen := &fakeGenerator{reply: Reply{OutputText: "Agent: hi"}}
	c, _ := NewClient(gen, nil)

	b := validBrief()
	b.Tone = "Warm and confident"
	_, err := c.Generate(context.Background(), b)
	require.NoError(t, err)

	require.Equal(t, systemInstruction, gen.system)
	require.Contains(t, gen.system, "200 words")
	for _, want := range []string{"(Jordan)", "goal (Book a demo)", "product (Nimbus CRM)", "Tone: Warm and confident.", "Additional notes: None.", `"Agent:"`} {
		require.True(t, strings.Contains(gen.user, want), "missing %q in prompt:\n%s", want, gen.user)
	}
}

func TestBuildUserPrompt_DefaultTone(t *testing.T) {
	require.Contains(t, buildUserPrompt(validBrief()), "Tone: Professional and upbeat.")
}
