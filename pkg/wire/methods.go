package wire

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "geyser.Geyser"

// Full method names of the Geyser service.
const (
	MethodSubscribe          = "/" + ServiceName + "/Subscribe"
	MethodPing               = "/" + ServiceName + "/Ping"
	MethodGetLatestBlockhash = "/" + ServiceName + "/GetLatestBlockhash"
	MethodGetBlockHeight     = "/" + ServiceName + "/GetBlockHeight"
	MethodGetSlot            = "/" + ServiceName + "/GetSlot"
	MethodIsBlockhashValid   = "/" + ServiceName + "/IsBlockhashValid"
	MethodGetVersion         = "/" + ServiceName + "/GetVersion"
)
