package params

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNetworkByName(t *testing.T) {
	main, err := NetworkByName("mainnet")
	require.NoError(t, err)
	require.Equal(t, uint32(0xd9b4bef9), main.MagicValue())
	require.Equal(t, uint16(8333), main.DefaultPort)
	require.NotEmpty(t, main.DNSSeeds)

	test, err := NetworkByName("testnet")
	require.NoError(t, err)
	require.Equal(t, "testnet3", test.Name)
	require.Equal(t, uint32(0x0709110b), test.MagicValue())
	require.Equal(t, uint16(18333), test.DefaultPort)

	_, err = NetworkByName("dogecoin")
	require.Error(t, err)
}
