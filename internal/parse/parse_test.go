package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inventoryOutput = `Interface                MAC Address    Method  Domain  Status Fl  Session ID
--------------------------------------------------------------------------------
Gi1/0/12                 0050.5699.1234 mab     DATA    Auth       0A0A0A01000000120001C2D5
Gi1/0/13                 f4cf.e243.aa01 dot1x   DATA    Auth       0A0A0A010000001300021F88
Gi1/0/24                 0898.ef12.aabb mab     DATA    Unauth     0A0A0A01000000190002AB11

Session count = 3
`

const unauthorizedDetail = `            Interface: GigabitEthernet1/0/24
               IIF-ID: 0x1812C6
          MAC Address: 0898.ef12.aabb
         IPv6 Address: Unknown
         IPv4 Address: 10.20.30.44
            User-Name: 08-98-EF-12-AA-BB
               Status:  Unauthorized
               Domain: DATA
       Current Policy: POLICY_Gi1/0/24

Method status list:
       Method           State
       dot1x            Stopped
       mab              Authc Failed
`

const authorizedDetail = `            Interface: GigabitEthernet1/0/13
          MAC Address: f4cf.e243.aa01
         IPv4 Address: 10.20.30.41
            User-Name: host/LAB-PC-13.example.com
               Status:  Authorized
               Domain: DATA

Method status list:
       Method           State
       dot1x            Authc Success
`

func TestParseInventory(t *testing.T) {
	tests := []struct {
		name          string
		output        string
		expectedCount string
		expectedMACs  []string
	}{
		{
			name:          "full session table",
			output:        inventoryOutput,
			expectedCount: "3",
			expectedMACs:  []string{"0050.5699.1234", "f4cf.e243.aa01", "0898.ef12.aabb"},
		},
		{
			name:          "duplicates preserved in order",
			output:        "aabb.ccdd.eeff\n1111.2222.3333\naabb.ccdd.eeff\nSession count = 2\n",
			expectedCount: "2",
			expectedMACs:  []string{"aabb.ccdd.eeff", "1111.2222.3333", "aabb.ccdd.eeff"},
		},
		{
			name:          "uppercase hex accepted",
			output:        "AABB.CCDD.EEFF\n",
			expectedCount: "",
			expectedMACs:  []string{"AABB.CCDD.EEFF"},
		},
		{
			name:          "missing count line yields empty count",
			output:        "Gi1/0/1  0050.5699.1234  mab  DATA  Auth\n",
			expectedCount: "",
			expectedMACs:  []string{"0050.5699.1234"},
		},
		{
			name:          "no sessions",
			output:        "No sessions match the given criteria.\n",
			expectedCount: "",
			expectedMACs:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := ParseInventory(tt.output)
			assert.Equal(t, tt.expectedCount, inv.Count)
			assert.Equal(t, tt.expectedMACs, inv.MACs)
		})
	}
}

func TestParseDetail_AuthorizedSessionNotMaterialized(t *testing.T) {
	// Same input must yield the same absence on every call.
	for i := 0; i < 2; i++ {
		session, ok := ParseDetail(authorizedDetail, "f4cf.e243.aa01")
		assert.False(t, ok)
		assert.Nil(t, session)
	}
}

func TestParseDetail_TriggerIsCaseSensitive(t *testing.T) {
	_, ok := ParseDetail("Status:  unauthorized\n", "aabb.ccdd.eeff")
	assert.False(t, ok)

	_, ok = ParseDetail("Status:  fail\n", "aabb.ccdd.eeff")
	assert.False(t, ok)

	// Mixed-case "Failed" alone carries neither marker.
	_, ok = ParseDetail("Status:  Authz Failed\n", "aabb.ccdd.eeff")
	assert.False(t, ok)

	_, ok = ParseDetail("mab  Authc FAILED_OVER\n", "aabb.ccdd.eeff")
	assert.True(t, ok)
}

func TestParseDetail_AuthzFailedFieldContracts(t *testing.T) {
	detail := `            Interface: Gi1/0/1
          MAC Address: 0050.5699.1234
               Status:  Authz Failed

Method status list:
       Method           State
       mab              Authc FAIL
`

	session, ok := ParseDetail(detail, "0050.5699.1234")
	require.True(t, ok)

	assert.Equal(t, "Authz Failed", session.Status)
	assert.Equal(t, "Gi1/0/1", session.Interface)
	assert.Equal(t, "mab", session.Method)
	assert.Equal(t, "0050.5699.1234", session.MACAddress)
	assert.Equal(t, "unknown", session.IPAddress)
	assert.Equal(t, "Unknown", session.UserName)
	assert.Empty(t, session.Vendor)
}

func TestParseDetail_UnauthorizedFullDetail(t *testing.T) {
	session, ok := ParseDetail(unauthorizedDetail, "0898.ef12.aabb")
	require.True(t, ok)

	assert.Equal(t, "Unauthorized", session.Status)
	assert.Equal(t, "GigabitEthernet1/0/24", session.Interface)
	assert.Equal(t, "0898.ef12.aabb", session.MACAddress)
	assert.Equal(t, "10.20.30.44", session.IPAddress)
	assert.Equal(t, "08-98-EF-12-AA-BB", session.UserName)
	assert.Equal(t, "mab", session.Method)
}

func TestParseDetail_FallbackMAC(t *testing.T) {
	session, ok := ParseDetail("Status:  Unauthorized\n", "0011.2233.4455")
	require.True(t, ok)
	assert.Equal(t, "0011.2233.4455", session.MACAddress)
}

func TestParseDetail_MethodTokens(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected string
	}{
		{name: "mab", line: "mab   Authc Failed\nFAIL\n", expected: "mab"},
		{name: "dot1x", line: "dot1x   Authc Failed\nFAIL\n", expected: "dot1x"},
		{name: "no method line", line: "FAIL\n", expected: "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, ok := ParseDetail(tt.line, "aabb.ccdd.eeff")
			require.True(t, ok)
			assert.Equal(t, tt.expected, session.Method)
		})
	}
}
