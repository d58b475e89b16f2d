package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Parse_Get_Requires_Key(t *testing.T) {
	t.Parallel()

	_, err := Parse("GET")
	require.ErrorIs(t, err, ErrMissingArguments)
}

func Test_Parse_Get_Returns_Key(t *testing.T) {
	t.Parallel()

	req, err := Parse("GET mykey")
	require.NoError(t, err)
	assert.Equal(t, CmdGet, req.Command)
	assert.Equal(t, "mykey", req.Key)
}

func Test_Parse_Del_Returns_Key(t *testing.T) {
	t.Parallel()

	req, err := Parse("del mykey")
	require.NoError(t, err)
	assert.Equal(t, CmdDel, req.Command, "command is normalized to uppercase")
	assert.Equal(t, "mykey", req.Key)
}

func Test_Parse_Put_Without_TTL(t *testing.T) {
	t.Parallel()

	req, err := Parse(`PUT mykey {"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, CmdPut, req.Command)
	assert.Equal(t, "mykey", req.Key)
	assert.Equal(t, `{"a":1}`, req.Value)
	assert.Nil(t, req.TTL)
}

func Test_Parse_Put_With_TTL_Clause(t *testing.T) {
	t.Parallel()

	req, err := Parse(`PUT mykey "hello" TTL 60`)
	require.NoError(t, err)
	assert.Equal(t, "mykey", req.Key)
	assert.Equal(t, `"hello"`, req.Value)
	require.NotNil(t, req.TTL)
	assert.EqualValues(t, 60, *req.TTL)
}

func Test_Parse_Put_Requires_Value(t *testing.T) {
	t.Parallel()

	_, err := Parse("PUT mykey")
	require.ErrorIs(t, err, ErrMissingArguments)
}

func Test_Parse_Put_Rejects_Malformed_TTL(t *testing.T) {
	t.Parallel()

	_, err := Parse(`PUT mykey "v" TTL abc`)
	require.ErrorIs(t, err, ErrMalformedTTL)
}

func Test_Parse_Ttl_Command(t *testing.T) {
	t.Parallel()

	req, err := Parse("TTL mykey 120")
	require.NoError(t, err)
	assert.Equal(t, CmdTTL, req.Command)
	assert.Equal(t, "mykey", req.Key)
	require.NotNil(t, req.TTL)
	assert.EqualValues(t, 120, *req.TTL)
}

func Test_Parse_Ttl_Command_Requires_Both_Arguments(t *testing.T) {
	t.Parallel()

	_, err := Parse("TTL mykey")
	require.ErrorIs(t, err, ErrMissingArguments)
}

func Test_Parse_Zero_Argument_Commands(t *testing.T) {
	t.Parallel()

	for _, cmd := range []string{CmdStats, CmdCompact, CmdShutdown, CmdExit} {
		req, err := Parse(cmd)
		require.NoError(t, err)
		assert.Equal(t, cmd, req.Command)
	}
}

func Test_Parse_Unknown_Command(t *testing.T) {
	t.Parallel()

	_, err := Parse("FROB mykey")
	require.ErrorIs(t, err, ErrUnknownCommand)
}

func Test_Parse_Empty_Line(t *testing.T) {
	t.Parallel()

	_, err := Parse("   ")
	require.ErrorIs(t, err, ErrUnknownCommand)
}

func Test_FormatStats_Renders_Null_When_Never_Compacted(t *testing.T) {
	t.Parallel()

	lines := FormatStats(Stats{KeysInIndex: 3})
	assert.Contains(t, lines, "last_compaction_time: null")
	assert.Contains(t, lines, "keys_in_index: 3")
}

func Test_FormatStats_Renders_Timestamp_When_Compacted(t *testing.T) {
	t.Parallel()

	ts := int64(1700000000)
	lines := FormatStats(Stats{LastCompactionTime: &ts})
	assert.Contains(t, lines, "last_compaction_time: 1700000000")
}

func Test_Format_Helpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "OK", FormatOK())
	assert.Equal(t, "ERR boom", FormatErr("boom"))
	assert.Equal(t, "VALUE 42", FormatValue("42"))
	assert.Equal(t, "NOT_FOUND", FormatNotFound())
	assert.Equal(t, "DELETED", FormatDeleted())
}
