package fileman

import (
	"fmt"

	"github.com/cogu/apx-go/internal/apxerr"
	"github.com/cogu/apx-go/internal/logger"
	"github.com/cogu/apx-go/rmf"
)

// Greeting is the textual handshake line sent at connection start. The
// "NumHeader-Format: 32" line is what motivates the outer 4-byte length
// prefix rmf.StreamDecoder relies on.
const Greeting = "RMFP/1.0\nNumHeader-Format: 32\n\n"

// TransmitHandler is the byte-oriented sink the core writes frames
// into. Reserve returns ok=false when backpressured (TRANSMIT_UNAVAILABLE).
type TransmitHandler interface {
	Reserve(n int) (buf []byte, ok bool)
	Send(buf []byte) (sent int, err error)
}

// Events collects the callbacks a Manager fires as files are
// discovered, opened and written.
type Events interface {
	RemoteFileCreated(f *File)
	FileOpenRequested(f *File)
	RemoteFileWritten(f *File, offset int, data []byte)
}

// Manager is the File Manager: advertises local files, learns the
// peer's files, opens them, and routes incoming writes.
type Manager struct {
	local    *FileMap
	remote   *FileMap
	receiver *Receiver
	events   Events
	tx       TransmitHandler
	log      logger.Logger

	unknownAddressCount uint64
}

// NewManager returns a Manager ready to drive one connection.
func NewManager(events Events, tx TransmitHandler, log logger.Logger, maxFragmentSize int) *Manager {
	return &Manager{
		local:    NewFileMap(),
		remote:   NewFileMap(),
		receiver: NewReceiver(maxFragmentSize),
		events:   events,
		tx:       tx,
		log:      log,
	}
}

// AddLocalFile auto-places f in the region matching its Kind and adds it
// to the local file map. Must be called before Connected.
func (m *Manager) AddLocalFile(f *File) error {
	switch f.Kind {
	case KindDefinition:
		return m.local.AutoInsertDefinition(f)
	case KindProvidePortData, KindRequirePortData:
		return m.local.AutoInsertPortData(f)
	default:
		return m.local.AutoInsertUserData(f)
	}
}

// LocalFiles returns every locally advertised file, in address order.
func (m *Manager) LocalFiles() []*File { return m.local.All() }

// RemoteFiles returns every file the peer has advertised.
func (m *Manager) RemoteFiles() []*File { return m.remote.All() }

func (m *Manager) sendFrame(address uint32, more bool, payload []byte) error {
	frame, err := rmf.EncodeFrame(address, more, payload)
	if err != nil {
		return apxerr.Wrap("fileman.Manager.send", apxerr.InvalidArgument, err)
	}
	buf, ok := m.tx.Reserve(len(frame))
	if !ok {
		return apxerr.New("fileman.Manager.send", apxerr.TransmitUnavailable)
	}
	copy(buf, frame)
	if _, err := m.tx.Send(buf[:len(frame)]); err != nil {
		return apxerr.Wrap("fileman.Manager.send", apxerr.TransmitUnavailable, err)
	}
	return nil
}

// Connected runs the connection handshake: send the greeting,
// advertise every local file, then EOT.
func (m *Manager) Connected() error {
	if err := m.sendFrame(rmf.CmdAreaStart, false, []byte(Greeting)); err != nil {
		return err
	}
	for _, f := range m.local.All() {
		body, err := rmf.EncodeFileInfo(f.Info())
		if err != nil {
			return apxerr.Wrap("fileman.Manager.Connected", apxerr.InvalidArgument, err)
		}
		if err := m.sendFrame(rmf.CmdAreaStart, false, body); err != nil {
			return err
		}
	}
	return m.sendFrame(rmf.CmdAreaStart, false, rmf.EncodeSimple(rmf.CmdEOT))
}

// OpenRemoteFile sends FILE_OPEN for a file previously learned from the
// peer's advertisement.
func (m *Manager) OpenRemoteFile(f *File) error {
	if !f.IsRemote {
		return apxerr.New("fileman.Manager.OpenRemoteFile", apxerr.InvalidArgument)
	}
	return m.sendFrame(rmf.CmdAreaStart, false, rmf.EncodeAddressCmd(rmf.CmdFileOpen, f.Address))
}

// WriteLocalFile sends the given bytes as a write into a local file at
// offset, fragmenting at fragmentSize if necessary.
func (m *Manager) WriteLocalFile(f *File, offset int, data []byte, fragmentSize int) error {
	if fragmentSize <= 0 {
		fragmentSize = len(data)
		if fragmentSize == 0 {
			fragmentSize = 1
		}
	}
	address := f.Address + uint32(offset)
	for len(data) > 0 {
		n := fragmentSize
		if n > len(data) {
			n = len(data)
		}
		more := n < len(data)
		if err := m.sendFrame(address, more, data[:n]); err != nil {
			return err
		}
		address += uint32(n)
		data = data[n:]
	}
	return nil
}

// OnBytes feeds bytes received from the transport into the manager. It
// is the core's receive entry point.
func (m *Manager) OnBytes(decoder *rmf.StreamDecoder, data []byte) (int, error) {
	frames, consumed, err := decoder.Feed(data)
	if err != nil {
		return consumed, apxerr.Wrap("fileman.Manager.OnBytes", apxerr.ProtocolError, err)
	}
	for _, f := range frames {
		if err := m.dispatch(f); err != nil {
			return consumed, err
		}
	}
	return consumed, nil
}

func (m *Manager) dispatch(frame rmf.Frame) error {
	if rmf.IsCmdAddress(frame.Address) {
		return m.dispatchCommand(frame.Payload)
	}
	completion, err := m.receiver.Feed(frame.Address, frame.Payload, frame.More)
	if err != nil {
		m.log.Warnf("fileman: %v, nacking", err)
		return m.sendFrame(rmf.CmdAreaStart, false, rmf.EncodeSimple(rmf.CmdNack))
	}
	if completion == nil {
		return nil
	}
	return m.routeWrite(completion.StartAddress, completion.Data)
}

// routeWrite delivers a completed write to the local file owning its
// address. Writes land in our own address space: a peer only ever
// writes to a file address we ourselves advertised, so the receive path
// always resolves against the local map.
func (m *Manager) routeWrite(address uint32, data []byte) error {
	file := m.local.FindByAddress(address)
	if file == nil {
		m.unknownAddressCount++
		m.log.Debugf("fileman: write to unknown address 0x%08X dropped", address)
		return nil
	}
	offset := int(address - file.Address)
	if file.Sink != nil {
		if err := file.Sink.WriteAt(offset, data); err != nil {
			return apxerr.Wrap("fileman.Manager.routeWrite", apxerr.InvalidArgument, err)
		}
	}
	m.events.RemoteFileWritten(file, offset, data)
	return nil
}

func (m *Manager) dispatchCommand(payload []byte) error {
	cmdType, err := rmf.DecodeCmdType(payload)
	if err != nil {
		return m.nack()
	}
	body := payload[4:]
	switch cmdType {
	case rmf.CmdAck, rmf.CmdNack:
		return nil
	case rmf.CmdEOT:
		return nil
	case rmf.CmdFileInfo:
		return m.handleFileInfo(body)
	case rmf.CmdFileOpen:
		return m.handleFileOpen(body)
	case rmf.CmdFileClose:
		return m.handleFileClose(body)
	case rmf.CmdRevokeFile:
		return m.handleRevokeFile(body)
	case rmf.CmdGetFileInfo:
		return m.handleGetFileInfo(body)
	case rmf.CmdGetFileList:
		return m.handleGetFileList()
	default:
		return m.nack()
	}
}

func (m *Manager) nack() error {
	return m.sendFrame(rmf.CmdAreaStart, false, rmf.EncodeSimple(rmf.CmdNack))
}

func (m *Manager) handleFileInfo(body []byte) error {
	info, err := rmf.DecodeFileInfo(body)
	if err != nil {
		return m.nack()
	}
	f, err := NewRemote(info)
	if err != nil {
		if apxerr.Is(err, apxerr.FileTooLarge) {
			return m.nack()
		}
		return err
	}
	if err := m.remote.InsertAt(f); err != nil {
		return m.nack()
	}
	m.events.RemoteFileCreated(f)
	return nil
}

func (m *Manager) handleFileOpen(body []byte) error {
	address, err := rmf.DecodeAddressCmd(body)
	if err != nil {
		return m.nack()
	}
	f := m.local.FindByAddress(address)
	if f == nil {
		return m.nack()
	}
	f.IsOpen = true
	m.events.FileOpenRequested(f)
	return nil
}

func (m *Manager) handleFileClose(body []byte) error {
	address, err := rmf.DecodeAddressCmd(body)
	if err != nil {
		return m.nack()
	}
	if f := m.local.FindByAddress(address); f != nil {
		f.IsOpen = false
	}
	return nil
}

// handleRevokeFile implements the SUPPLEMENTED FEATURE recovered from
// apx_router.c: the peer retracting a previously advertised file. The
// file is closed and dropped from our remote map.
func (m *Manager) handleRevokeFile(body []byte) error {
	address, err := rmf.DecodeAddressCmd(body)
	if err != nil {
		return m.nack()
	}
	if f := m.remote.FindByAddress(address); f != nil {
		f.IsOpen = false
		m.remote.Remove(f)
	}
	return nil
}

// handleGetFileInfo implements the SUPPLEMENTED FEATURE: an address-
// keyed query answered with our own FILE_INFO for that address.
func (m *Manager) handleGetFileInfo(body []byte) error {
	address, err := rmf.DecodeAddressCmd(body)
	if err != nil {
		return m.nack()
	}
	f := m.local.FindByAddress(address)
	if f == nil {
		return m.nack()
	}
	info, err := rmf.EncodeFileInfo(f.Info())
	if err != nil {
		return apxerr.Wrap("fileman.Manager.handleGetFileInfo", apxerr.InvalidArgument, err)
	}
	return m.sendFrame(rmf.CmdAreaStart, false, info)
}

// handleGetFileList implements the SUPPLEMENTED FEATURE: re-run the
// file-advertisement sequence on demand.
func (m *Manager) handleGetFileList() error {
	for _, f := range m.local.All() {
		info, err := rmf.EncodeFileInfo(f.Info())
		if err != nil {
			return apxerr.Wrap("fileman.Manager.handleGetFileList", apxerr.InvalidArgument, err)
		}
		if err := m.sendFrame(rmf.CmdAreaStart, false, info); err != nil {
			return err
		}
	}
	return m.sendFrame(rmf.CmdAreaStart, false, rmf.EncodeSimple(rmf.CmdEOT))
}

// UnknownAddressCount reports how many completed writes were dropped
// because they targeted no known local file.
func (m *Manager) UnknownAddressCount() uint64 { return m.unknownAddressCount }

func (m *Manager) String() string {
	return fmt.Sprintf("Manager{local=%d remote=%d}", m.local.Len(), m.remote.Len())
}
