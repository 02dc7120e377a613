package socketio

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

type enginePacketType byte

const (
	engineOpen    enginePacketType = '0'
	engineClose   enginePacketType = '1'
	enginePing    enginePacketType = '2'
	enginePong    enginePacketType = '3'
	engineMessage enginePacketType = '4'
)

type socketPacketType byte

const (
	socketConnect      socketPacketType = '0'
	socketDisconnect   socketPacketType = '1'
	socketEvent        socketPacketType = '2'
	socketAck          socketPacketType = '3'
	socketConnectError socketPacketType = '4'
)

type openPacket struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload"`
}

// liveness is how long the server may stay silent before the connection is
// considered dead.
func (p openPacket) liveness() time.Duration {
	return time.Duration(p.PingInterval+p.PingTimeout) * time.Millisecond
}

func parseOpenPacket(msg string) (openPacket, error) {
	if msg == "" || enginePacketType(msg[0]) != engineOpen {
		return openPacket{}, errors.New("not an open packet")
	}
	var p openPacket
	if err := json.Unmarshal([]byte(msg[1:]), &p); err != nil {
		return openPacket{}, err
	}
	if p.SID == "" || p.PingInterval <= 0 || p.PingTimeout <= 0 {
		return openPacket{}, errors.New("incomplete open packet")
	}
	return p, nil
}

func parseOptionalNamespace(s string) (namespace string, rest string) {
	if !strings.HasPrefix(s, "/") {
		return "/", s
	}
	comma := strings.IndexByte(s, ',')
	if comma == -1 {
		return s, ""
	}
	return s[:comma], s[comma+1:]
}

func parseOptionalIDPrefix(s string) (id *int, rest string) {
	i := 0
	for i < len(s) {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		i++
	}
	if i == 0 {
		return nil, s
	}
	v, err := strconv.Atoi(s[:i])
	if err != nil {
		return nil, s
	}
	return &v, s[i:]
}

type socketEventPacket struct {
	Namespace string
	ID        *int
	Event     string
	Args      []json.RawMessage
}

func parseSocketEventPacket(payload string) (socketEventPacket, error) {
	if payload == "" {
		return socketEventPacket{}, errors.New("empty payload")
	}
	if payload[0] != byte(socketEvent) {
		return socketEventPacket{}, errors.New("not an event packet")
	}

	ns, rest := parseOptionalNamespace(payload[1:])
	id, rest := parseOptionalIDPrefix(rest)
	if !strings.HasPrefix(rest, "[") {
		return socketEventPacket{}, errors.New("invalid event payload")
	}

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(rest), &arr); err != nil {
		return socketEventPacket{}, err
	}
	if len(arr) == 0 {
		return socketEventPacket{}, errors.New("missing event name")
	}
	var eventName string
	if err := json.Unmarshal(arr[0], &eventName); err != nil {
		return socketEventPacket{}, errors.New("invalid event name")
	}

	return socketEventPacket{Namespace: ns, ID: id, Event: eventName, Args: arr[1:]}, nil
}

// parseConnectPayload returns the JSON object following a CONNECT or
// CONNECT_ERROR packet type, or nil when the packet carries none.
func parseConnectPayload(payload string) (namespace string, data json.RawMessage, err error) {
	if payload == "" {
		return "", nil, errors.New("empty payload")
	}
	t := socketPacketType(payload[0])
	if t != socketConnect && t != socketConnectError {
		return "", nil, errors.New("not a connect packet")
	}
	ns, rest := parseOptionalNamespace(payload[1:])
	if rest == "" {
		return ns, nil, nil
	}
	if !json.Valid([]byte(rest)) {
		return ns, nil, errors.New("invalid connect payload")
	}
	return ns, json.RawMessage(rest), nil
}

// connectErrorMessage extracts the reason from a CONNECT_ERROR body, which
// is either {"message": "..."} or a bare string.
func connectErrorMessage(data json.RawMessage) string {
	if len(data) == 0 {
		return "connection refused"
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil && s != "" {
		return s
	}
	return "connection refused"
}

func writeNamespace(b *strings.Builder, namespace string) {
	if namespace != "" && namespace != "/" {
		b.WriteString(namespace)
		b.WriteByte(',')
	}
}

func buildSocketEventPacket(namespace string, id *int, event string, args ...any) (string, error) {
	arr := make([]any, 0, 1+len(args))
	arr = append(arr, event)
	arr = append(arr, args...)
	data, err := json.Marshal(arr)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteByte(byte(socketEvent))
	writeNamespace(&b, namespace)
	if id != nil {
		b.WriteString(strconv.Itoa(*id))
	}
	b.Write(data)
	return b.String(), nil
}

// buildSocketConnectPacket builds a CONNECT packet. Clients send their auth
// object in it; servers answer with {"sid": ...}.
func buildSocketConnectPacket(namespace string, payload any) (string, error) {
	var b strings.Builder
	b.WriteByte(byte(socketConnect))
	writeNamespace(&b, namespace)
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", err
		}
		b.Write(data)
	}
	return b.String(), nil
}

func buildSocketConnectErrorPacket(namespace string, message string) (string, error) {
	data, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteByte(byte(socketConnectError))
	writeNamespace(&b, namespace)
	b.Write(data)
	return b.String(), nil
}

func buildSocketDisconnectPacket(namespace string) string {
	var b strings.Builder
	b.WriteByte(byte(socketDisconnect))
	writeNamespace(&b, namespace)
	return b.String()
}

func buildSocketAckPacket(namespace string, id int, args ...any) (string, error) {
	if args == nil {
		args = make([]any, 0)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteByte(byte(socketAck))
	writeNamespace(&b, namespace)
	b.WriteString(strconv.Itoa(id))
	b.Write(data)
	return b.String(), nil
}
