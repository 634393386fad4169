package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// OpId is minted by the peer; opaque to the core, used only as a
// correlation key and echoed back in the response.
type OpId uuid.UUID

func (o OpId) String() string {
	return uuid.UUID(o).String()
}

// ProxyToken builds the handshake URL and auth header for the outbound
// WebSocket connection.
type ProxyToken struct {
	WorkspaceID uuid.UUID
	ProxyName   Name
	Token       string
}

// HandshakeURL builds "{base}/api/workspaces/{workspace_id}/proxies/{proxy_name}/ws".
func (t ProxyToken) HandshakeURL(base string) string {
	return fmt.Sprintf("%s/api/workspaces/%s/proxies/%s/ws", base, t.WorkspaceID, t.ProxyName)
}

const AuthHeaderName = "fp-auth-token"
const ConnIDHeaderName = "fp-conn-id"

// SupportedProtocolVersions are the protocol_version values the core
// recognises. Anything else yields ValidationError("unsupported protocol version").
var SupportedProtocolVersions = map[uint8]struct{}{1: {}, 2: {}}

// ServerMessage is a decoded inbound frame from the control plane.
type ServerMessage struct {
	Kind ServerMessageKind

	// InvokeProxyRequest fields
	OpId             OpId
	DataSourceName   Name
	Payload          []byte
	ProtocolVersion  uint8
}

type ServerMessageKind string

const (
	ServerMessageInvoke ServerMessageKind = "invoke_proxy_request"
	ServerMessagePoll   ServerMessageKind = "poll" // reserved
)

// ProxyMessage is an outbound frame to the control plane.
type ProxyMessage struct {
	Kind ProxyMessageKind

	// SetDataSources
	DataSources []DataSource

	// InvokeProxyResponse / Error
	OpId       *OpId
	Data       []byte
	ProviderErr *ProviderError
}

type ProxyMessageKind string

const (
	ProxyMessageSetDataSources      ProxyMessageKind = "set_data_sources"
	ProxyMessageInvokeProxyResponse ProxyMessageKind = "invoke_proxy_response"
	ProxyMessageError               ProxyMessageKind = "error"
)

func SetDataSourcesMessage(sources []DataSource) ProxyMessage {
	return ProxyMessage{Kind: ProxyMessageSetDataSources, DataSources: sources}
}

func InvokeProxyResponseMessage(opID OpId, data []byte) ProxyMessage {
	return ProxyMessage{Kind: ProxyMessageInvokeProxyResponse, OpId: &opID, Data: data}
}

func ErrorMessage(opID *OpId, err ProviderError) ProxyMessage {
	return ProxyMessage{Kind: ProxyMessageError, OpId: opID, ProviderErr: &err}
}
