package internal

import (
	"github.com/Eyevinn/avdemux/common"
	"github.com/Eyevinn/avdemux/mpegts"
)

type sdtServiceDescriptor struct {
	ServiceName  string `json:"serviceName"`
	ProviderName string `json:"providerName"`
}

type sdtService struct {
	ServiceID   uint16                 `json:"serviceId"`
	ServiceType byte                   `json:"serviceType,omitempty"`
	Descriptors []sdtServiceDescriptor `json:"descriptors"`
}

type SdtInfo struct {
	SdtServices []sdtService `json:"SDT"`
}

func PrintSdtInfo(jp *common.JsonPrinter, services []mpegts.Service, show bool) {
	jp.Print(ToSdtInfo(services), show)
}

func ToSdtInfo(services []mpegts.Service) SdtInfo {
	info := SdtInfo{
		SdtServices: make([]sdtService, 0, len(services)),
	}
	for _, s := range services {
		info.SdtServices = append(info.SdtServices, toSdtService(s))
	}
	return info
}

func toSdtService(s mpegts.Service) sdtService {
	out := sdtService{
		ServiceID:   s.ServiceID,
		ServiceType: s.ServiceType,
		Descriptors: make([]sdtServiceDescriptor, 0, 1),
	}
	if s.ServiceName != "" || s.ProviderName != "" {
		out.Descriptors = append(out.Descriptors, sdtServiceDescriptor{
			ProviderName: s.ProviderName,
			ServiceName:  s.ServiceName,
		})
	}
	return out
}
