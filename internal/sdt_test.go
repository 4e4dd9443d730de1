package internal

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Eyevinn/avdemux/common"
	"github.com/Eyevinn/avdemux/mpegts"
)

func TestSdtInfo(t *testing.T) {
	var buf bytes.Buffer
	PrintSdtInfo(&common.JsonPrinter{W: &buf}, []mpegts.Service{
		{ServiceID: 1, ServiceType: 1, ServiceName: "name", ProviderName: "prov"},
		{ServiceID: 2},
	}, true)
	require.Equal(t, `{"SDT":[{"serviceId":1,"serviceType":1,"descriptors":[{"serviceName":"name","providerName":"prov"}]},{"serviceId":2,"descriptors":[]}]}`+"\n", buf.String())
}
