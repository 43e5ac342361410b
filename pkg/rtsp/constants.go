package rtsp

// RTSP Methods
const (
	MethodDescribe = "DESCRIBE"
	MethodSetup    = "SETUP"
	MethodPlay     = "PLAY"
	MethodPause    = "PAUSE"
	MethodTeardown = "TEARDOWN"
)

// RTSP Status Codes
const (
	StatusOK = 200
)

// RTSP Headers
const (
	HeaderContentBase   = "Content-Base"
	HeaderContentLength = "Content-Length"
	HeaderContentType   = "Content-Type"
	HeaderCSeq          = "CSeq"
	HeaderSession       = "Session"
	HeaderTransport     = "Transport"
)

// Transport Protocols
const (
	TransportRTPUDP    = "RTP/AVP"
	TransportUnicast   = "unicast"
	TransportClientKey = "client_port="
)

// RTSP Version
const RTSPVersion = "RTSP/1.0"

// ContentTypeSDP is the DESCRIBE body type
const ContentTypeSDP = "application/sdp"

// Default Values
const (
	DefaultRTSPPort  = 13569
	DefaultRTCPPort  = 19001
	DefaultSessionID = 123456
)
