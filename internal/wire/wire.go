// Package wire implements the compact, self-describing binary record format
// carried in every WebSocket Binary frame. It is the Go side of the
// encode/decode pair spec.md treats as an external collaborator: callers
// never see a msgpack type, only domain.ServerMessage/domain.ProxyMessage.
package wire

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/relayforge/relayforge/internal/core/domain"
)

// serverEnvelope is the flat, internally-tagged wire shape for inbound
// frames. Only the fields relevant to Type are populated on the wire; the
// rest are omitted via omitempty so a Poll frame stays tiny.
type serverEnvelope struct {
	Type            string `msgpack:"type"`
	OpId            string `msgpack:"op_id"`
	DataSourceName  string `msgpack:"data_source_name,omitempty"`
	Payload         []byte `msgpack:"payload,omitempty"`
	ProtocolVersion uint8  `msgpack:"protocol_version,omitempty"`
}

type dataSourceWire struct {
	Name         string         `msgpack:"name"`
	ProviderType string         `msgpack:"provider_type"`
	Description  string         `msgpack:"description,omitempty"`
	Config       map[string]any `msgpack:"config"`
	Status       statusWire     `msgpack:"status"`
}

type statusWire struct {
	Connected    bool   `msgpack:"connected"`
	Kind         string `msgpack:"kind,omitempty"`
	Message      string `msgpack:"message,omitempty"`
	Details      string `msgpack:"details,omitempty"`
	HTTPStatus   int    `msgpack:"http_status,omitempty"`
	ResponseBody []byte `msgpack:"response_body,omitempty"`
}

type proxyEnvelope struct {
	Type        string           `msgpack:"type"`
	DataSources []dataSourceWire `msgpack:"data_sources,omitempty"`
	OpId        string           `msgpack:"op_id,omitempty"`
	Data        []byte           `msgpack:"data,omitempty"`
	Error       *statusWire      `msgpack:"error,omitempty"`
}

// Decode turns a raw Binary-frame payload into a domain.ServerMessage.
// Any malformed or unrecognised payload yields an error; the caller (the
// Session read loop) is responsible for logging and continuing rather than
// tearing the session down (spec.md §4.D, §7).
func Decode(raw []byte) (domain.ServerMessage, error) {
	var env serverEnvelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return domain.ServerMessage{}, fmt.Errorf("decode server message: %w", err)
	}

	opID, err := parseOpID(env.OpId)
	if err != nil {
		return domain.ServerMessage{}, fmt.Errorf("decode op_id: %w", err)
	}

	switch env.Type {
	case string(domain.ServerMessageInvoke):
		return domain.ServerMessage{
			Kind:            domain.ServerMessageInvoke,
			OpId:            opID,
			DataSourceName:  domain.Name(env.DataSourceName),
			Payload:         env.Payload,
			ProtocolVersion: env.ProtocolVersion,
		}, nil
	case string(domain.ServerMessagePoll):
		return domain.ServerMessage{Kind: domain.ServerMessagePoll, OpId: opID}, nil
	default:
		return domain.ServerMessage{}, fmt.Errorf("decode server message: unrecognised type %q", env.Type)
	}
}

// Encode turns a domain.ProxyMessage into the raw bytes of a Binary frame.
func Encode(msg domain.ProxyMessage) ([]byte, error) {
	env := proxyEnvelope{Type: string(msg.Kind)}

	switch msg.Kind {
	case domain.ProxyMessageSetDataSources:
		env.DataSources = make([]dataSourceWire, 0, len(msg.DataSources))
		for _, ds := range msg.DataSources {
			env.DataSources = append(env.DataSources, toDataSourceWire(ds))
		}
	case domain.ProxyMessageInvokeProxyResponse:
		if msg.OpId == nil {
			return nil, fmt.Errorf("encode invoke_proxy_response: missing op_id")
		}
		env.OpId = msg.OpId.String()
		env.Data = msg.Data
	case domain.ProxyMessageError:
		if msg.OpId != nil {
			env.OpId = msg.OpId.String()
		}
		if msg.ProviderErr == nil {
			return nil, fmt.Errorf("encode error message: missing provider error")
		}
		sw := toStatusWire(domain.ErrorStatus(*msg.ProviderErr))
		env.Error = &sw
	default:
		return nil, fmt.Errorf("encode message: unknown kind %q", msg.Kind)
	}

	out, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return out, nil
}

func toDataSourceWire(ds domain.DataSource) dataSourceWire {
	return dataSourceWire{
		Name:         ds.Name.String(),
		ProviderType: ds.ProviderType,
		Description:  ds.Description,
		Config:       ds.Config,
		Status:       toStatusWire(ds.Status),
	}
}

func toStatusWire(s domain.DataSourceStatus) statusWire {
	if s.Connected {
		return statusWire{Connected: true}
	}
	w := statusWire{Connected: false}
	if s.Err != nil {
		w.Kind = string(s.Err.Kind)
		w.Message = s.Err.Message
		w.Details = s.Err.Details
		w.HTTPStatus = s.Err.HTTPStatus
		w.ResponseBody = s.Err.ResponseBody
	}
	return w
}

func parseOpID(s string) (domain.OpId, error) {
	if s == "" {
		return domain.OpId{}, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return domain.OpId{}, err
	}
	return domain.OpId(id), nil
}
