package network

import "github.com/inference-sim/qnet-sim/sim/resource"

func init() {
	RegisterPayload(string(resource.KindRequest), func() Payload { return &resource.RequestMessage{} })
	RegisterPayload(string(resource.KindResponse), func() Payload { return &resource.ResponseMessage{} })
	RegisterPayload(KindPhoton, func() Payload { return &PhotonMessage{} })
}
