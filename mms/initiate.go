package mms

import (
	"fmt"
	"strings"

	"github.com/iec61850-go/osistack/ber"
	"github.com/iec61850-go/osistack/internal/xerrors"
)

// ServiceSupportedBit is a bit offset into the ServicesSupportedCalling
// parameter of an InitiateRequest, per ISO 9506-2 Annex A's service
// bit-string table.
type ServiceSupportedBit uint

const (
	Status ServiceSupportedBit = iota
	GetNameList
	Identify
	Rename
	Read
	Write
	GetVariableAccessAttributes
	DefineNamedVariable
	DefineScatteredAccess
	GetScatteredAccessAttributes
	DeleteVariableAccess
	DefineNamedVariableList
	GetNamedVariableListAttributes
	DeleteNamedVariableList
	DefineNamedType
	GetNamedTypeAttributes
	DeleteNamedType
	Input
	Output
	TakeControl
	RelinquishControl
	DefineSemaphore
	DeleteSemaphore
	ReportSemaphoreStatus
	ReportPoolSemaphoreStatus
	ReportSemaphoreEntryStatus
	InitiateDownloadSequence
	DownloadSegment
	TerminateDownloadSequence
	InitiateUploadSequence
	UploadSegment
	TerminateUploadSequence
	RequestDomainDownload
	RequestDomainUpload
	LoadDomainContent
	StoreDomainContent
	DeleteDomain
	GetDomainAttributes
	CreateProgramInvocation
	DeleteProgramInvocation
	Start
	Stop
	Resume
	Reset
	Kill
	GetProgramInvocationAttributes
	ObtainFile
	DefineEventCondition
	DeleteEventCondition
	GetEventConditionAttributes
	ReportEventConditionStatus
	AlterEventConditionMonitoring
	TriggerEvent
	DefineEventAction
	DeleteEventAction
	GetEventActionAttributes
	ReportActionStatus
	DefineEventEnrollment
	DeleteEventEnrollment
	AlterEventEnrollment
	ReportEventEnrollmentStatus
	GetEventEnrollmentAttributes
	AcknowledgeEventNotification
	GetAlarmSummary
	GetAlarmEnrollmentSummary
	ReadJournal
	WriteJournal
	InitializeJournal
	ReportJournalStatus
	CreateJournal
	DeleteJournal
	GetCapabilityList
	FileOpen
	FileRead
	FileClose
	FileRename
	FileDelete
	FileDirectory
	UnsolicitedStatus
	InformationReport
	EventNotification
	AttachToEventCondition
	AttachToSemaphore
	Conclude
	Cancel
)

var serviceSupportedBitNames = [...]string{
	"Status", "GetNameList", "Identify", "Rename", "Read", "Write",
	"GetVariableAccessAttributes", "DefineNamedVariable", "DefineScatteredAccess",
	"GetScatteredAccessAttributes", "DeleteVariableAccess", "DefineNamedVariableList",
	"GetNamedVariableListAttributes", "DeleteNamedVariableList", "DefineNamedType",
	"GetNamedTypeAttributes", "DeleteNamedType", "Input", "Output", "TakeControl",
	"RelinquishControl", "DefineSemaphore", "DeleteSemaphore", "ReportSemaphoreStatus",
	"ReportPoolSemaphoreStatus", "ReportSemaphoreEntryStatus", "InitiateDownloadSequence",
	"DownloadSegment", "TerminateDownloadSequence", "InitiateUploadSequence",
	"UploadSegment", "TerminateUploadSequence", "RequestDomainDownload",
	"RequestDomainUpload", "LoadDomainContent", "StoreDomainContent", "DeleteDomain",
	"GetDomainAttributes", "CreateProgramInvocation", "DeleteProgramInvocation",
	"Start", "Stop", "Resume", "Reset", "Kill", "GetProgramInvocationAttributes",
	"ObtainFile", "DefineEventCondition", "DeleteEventCondition",
	"GetEventConditionAttributes", "ReportEventConditionStatus",
	"AlterEventConditionMonitoring", "TriggerEvent", "DefineEventAction",
	"DeleteEventAction", "GetEventActionAttributes", "ReportActionStatus",
	"DefineEventEnrollment", "DeleteEventEnrollment", "AlterEventEnrollment",
	"ReportEventEnrollmentStatus", "GetEventEnrollmentAttributes",
	"AcknowledgeEventNotification", "GetAlarmSummary", "GetAlarmEnrollmentSummary",
	"ReadJournal", "WriteJournal", "InitializeJournal", "ReportJournalStatus",
	"CreateJournal", "DeleteJournal", "GetCapabilityList", "FileOpen", "FileRead",
	"FileClose", "FileRename", "FileDelete", "FileDirectory", "UnsolicitedStatus",
	"InformationReport", "EventNotification", "AttachToEventCondition",
	"AttachToSemaphore", "Conclude", "Cancel",
}

func (b ServiceSupportedBit) String() string {
	if int(b) < len(serviceSupportedBitNames) {
		return serviceSupportedBitNames[b]
	}
	return fmt.Sprintf("ServiceSupportedBit(%d)", uint(b))
}

// ParameterCBBBit is a bit offset into the ProposedParameterCBB parameter of
// an InitiateRequest (the negotiated Conformance Building Blocks).
type ParameterCBBBit uint

const (
	Str1 ParameterCBBBit = iota
	Str2
	Vnam
	Valt
	Vadr
	Vsca
	Tpy
	Vlis
	Real
	SpareBit9
	Cei
)

var parameterCBBBitNames = [...]string{
	"Str1", "Str2", "Vnam", "Valt", "Vadr", "Vsca", "Tpy", "Vlis", "Real", "SpareBit9", "Cei",
}

func (b ParameterCBBBit) String() string {
	if int(b) < len(parameterCBBBitNames) {
		return parameterCBBBitNames[b]
	}
	return fmt.Sprintf("ParameterCBBBit(%d)", uint(b))
}

const (
	servicesSupportedBitmaskSize = 11 // 85 data bits + 3 padding bits
	parameterCBBBitmaskSize      = 2  // 11 data bits + 5 padding bits
)

// InitiateRequest carries the parameters MMS negotiates at association
// establishment: PDU size, outstanding-request limits, nesting depth, and
// the conformance building blocks and services the caller proposes.
type InitiateRequest struct {
	LocalDetailCalling                uint32
	ProposedMaxServOutstandingCalling uint32
	ProposedMaxServOutstandingCalled  uint32
	ProposedDataStructureNestingLevel uint32
	ProposedVersionNumber             uint32
	ProposedParameterCBB              []ParameterCBBBit
	ServicesSupportedCalling          []ServiceSupportedBit
}

// InitiateRequestOption mutates an InitiateRequest under construction.
type InitiateRequestOption func(*InitiateRequest)

// DefaultInitiateRequestParams mirrors libIEC61850's client defaults: a
// 65000-byte calling PDU size, five outstanding requests in each direction,
// ten levels of structure nesting, and the CBB/service set a conformant
// IEC 61850 MMS client proposes.
func DefaultInitiateRequestParams() *InitiateRequest {
	return &InitiateRequest{
		LocalDetailCalling:                65000,
		ProposedMaxServOutstandingCalling: 5,
		ProposedMaxServOutstandingCalled:  5,
		ProposedDataStructureNestingLevel: 10,
		ProposedVersionNumber:             1,
		ProposedParameterCBB:              []ParameterCBBBit{Str1, Str2, Vnam, Valt, Vlis},
		ServicesSupportedCalling: []ServiceSupportedBit{
			Status, GetNameList, Identify, Read, Write, GetVariableAccessAttributes,
			DefineNamedVariableList, GetNamedVariableListAttributes, DeleteNamedVariableList,
			GetDomainAttributes, Kill, ReadJournal, WriteJournal, InitializeJournal,
			ReportJournalStatus, GetCapabilityList, FileOpen, FileRead, FileClose,
			FileDelete, FileDirectory, UnsolicitedStatus, InformationReport, Conclude, Cancel,
		},
	}
}

func WithLocalDetailCalling(size uint32) InitiateRequestOption {
	return func(p *InitiateRequest) { p.LocalDetailCalling = size }
}

func WithProposedMaxServOutstandingCalling(count uint32) InitiateRequestOption {
	return func(p *InitiateRequest) { p.ProposedMaxServOutstandingCalling = count }
}

func WithProposedMaxServOutstandingCalled(count uint32) InitiateRequestOption {
	return func(p *InitiateRequest) { p.ProposedMaxServOutstandingCalled = count }
}

func WithProposedDataStructureNestingLevel(level uint32) InitiateRequestOption {
	return func(p *InitiateRequest) { p.ProposedDataStructureNestingLevel = level }
}

func WithProposedVersionNumber(version uint32) InitiateRequestOption {
	return func(p *InitiateRequest) { p.ProposedVersionNumber = version }
}

func WithProposedParameterCBB(parameters []ParameterCBBBit) InitiateRequestOption {
	return func(p *InitiateRequest) { p.ProposedParameterCBB = parameters }
}

func WithServicesSupportedCalling(services []ServiceSupportedBit) InitiateRequestOption {
	return func(p *InitiateRequest) { p.ServicesSupportedCalling = services }
}

// NewInitiateRequest builds an InitiateRequest from the libIEC61850-style
// defaults, applying any overriding options.
func NewInitiateRequest(opts ...InitiateRequestOption) *InitiateRequest {
	params := DefaultInitiateRequestParams()
	for _, opt := range opts {
		opt(params)
	}
	return params
}

func (r *InitiateRequest) String() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("LocalDetailCalling:%d", r.LocalDetailCalling))
	parts = append(parts, fmt.Sprintf("ProposedMaxServOutstandingCalling:%d", r.ProposedMaxServOutstandingCalling))
	parts = append(parts, fmt.Sprintf("ProposedMaxServOutstandingCalled:%d", r.ProposedMaxServOutstandingCalled))
	parts = append(parts, fmt.Sprintf("ProposedDataStructureNestingLevel:%d", r.ProposedDataStructureNestingLevel))
	parts = append(parts, fmt.Sprintf("ProposedVersionNumber:%d", r.ProposedVersionNumber))

	cbbNames := make([]string, len(r.ProposedParameterCBB))
	for i, b := range r.ProposedParameterCBB {
		cbbNames[i] = b.String()
	}
	parts = append(parts, fmt.Sprintf("ProposedParameterCBB:[%s]", strings.Join(cbbNames, " ")))

	svcNames := make([]string, len(r.ServicesSupportedCalling))
	for i, b := range r.ServicesSupportedCalling {
		svcNames[i] = b.String()
	}
	parts = append(parts, fmt.Sprintf("ServicesSupportedCalling:[%s]", strings.Join(svcNames, " ")))

	return fmt.Sprintf("InitiateRequest{%s}", strings.Join(parts, " "))
}

func bitOffsets[T ~uint](bits []T) []uint {
	out := make([]uint, len(bits))
	for i, b := range bits {
		out[i] = uint(b)
	}
	return out
}

// Bytes encodes the InitiateRequestPDU (tag 0xA8): four context-tagged
// INTEGER parameters followed by the mmsInitRequestDetail ([4] constructed)
// carrying the negotiated version and the two capability bit-strings.
func (r *InitiateRequest) Bytes() []byte {
	return encodeTLV(nil, tagInitiateRequest, r.buildContent())
}

func (r *InitiateRequest) buildContent() []byte {
	var content []byte
	content = encodeTLV(content, 0x80, encodeUint32(r.LocalDetailCalling))
	content = encodeTLV(content, 0x81, encodeUint32(r.ProposedMaxServOutstandingCalling))
	content = encodeTLV(content, 0x82, encodeUint32(r.ProposedMaxServOutstandingCalled))
	content = encodeTLV(content, 0x83, encodeUint32(r.ProposedDataStructureNestingLevel))
	content = append(content, r.buildInitDetail()...)
	return content
}

func (r *InitiateRequest) buildInitDetail() []byte {
	var detail []byte
	detail = encodeTLV(detail, 0x80, encodeUint32(r.ProposedVersionNumber))

	cbbBytes := ber.EncodeBitmaskFromOffsets(bitOffsets(r.ProposedParameterCBB), parameterCBBBitmaskSize*8)
	detail = encodeTLV(detail, 0x81, cbbBytes)

	svcBytes := ber.EncodeBitmaskFromOffsets(bitOffsets(r.ServicesSupportedCalling), servicesSupportedBitmaskSize*8)
	detail = encodeTLV(detail, 0x82, svcBytes)

	return encodeTLV(nil, 0xA4, detail)
}

// ParseInitiateRequest decodes an InitiateRequestPDU (tag 0xA8), tolerating
// unrecognized elements by skipping them. Used on the responder side to
// read the parameters a client proposed.
func ParseInitiateRequest(buffer []byte) (*InitiateRequest, error) {
	items, err := decodeTLVs(buffer)
	if err != nil {
		return nil, err
	}
	if len(items) != 1 || items[0].tag != tagInitiateRequest {
		return nil, xerrors.NewProtocol(layer, "expected InitiateRequestPDU tag 0x%02x", tagInitiateRequest)
	}
	fields, err := decodeTLVs(items[0].value)
	if err != nil {
		return nil, err
	}

	req := &InitiateRequest{}
	for _, f := range fields {
		switch f.tag {
		case 0x80:
			req.LocalDetailCalling = decodeUint32(f.value)
		case 0x81:
			req.ProposedMaxServOutstandingCalling = decodeUint32(f.value)
		case 0x82:
			req.ProposedMaxServOutstandingCalled = decodeUint32(f.value)
		case 0x83:
			req.ProposedDataStructureNestingLevel = decodeUint32(f.value)
		case 0xA4:
			if err := req.parseInitDetail(f.value); err != nil {
				return nil, err
			}
		}
	}
	return req, nil
}

func (r *InitiateRequest) parseInitDetail(buf []byte) error {
	fields, err := decodeTLVs(buf)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.tag {
		case 0x80:
			r.ProposedVersionNumber = decodeUint32(f.value)
		case 0x81:
			if len(f.value) > 1 {
				for _, off := range ber.DecodeBitmaskFromBytes(f.value[1:], f.value[0], parameterCBBBitmaskSize*8) {
					r.ProposedParameterCBB = append(r.ProposedParameterCBB, ParameterCBBBit(off))
				}
			}
		case 0x82:
			if len(f.value) > 1 {
				for _, off := range ber.DecodeBitmaskFromBytes(f.value[1:], f.value[0], servicesSupportedBitmaskSize*8) {
					r.ServicesSupportedCalling = append(r.ServicesSupportedCalling, ServiceSupportedBit(off))
				}
			}
		}
	}
	return nil
}

// InitiateResponse carries the negotiated counterpart values the server
// returns in its InitiateResponsePDU.
type InitiateResponse struct {
	LocalDetailCalled                 *uint32
	NegotiatedMaxServOutstandingCalling uint32
	NegotiatedMaxServOutstandingCalled  uint32
	NegotiatedDataStructureNestingLevel *uint32
	NegotiatedVersionNumber             uint32
	NegotiatedParameterCBB              []ParameterCBBBit
	ServicesSupportedCalled             []ServiceSupportedBit
}

func (r *InitiateResponse) String() string {
	var parts []string
	if r.LocalDetailCalled != nil {
		parts = append(parts, fmt.Sprintf("LocalDetailCalled:%d", *r.LocalDetailCalled))
	}
	parts = append(parts, fmt.Sprintf("NegotiatedMaxServOutstandingCalling:%d", r.NegotiatedMaxServOutstandingCalling))
	parts = append(parts, fmt.Sprintf("NegotiatedMaxServOutstandingCalled:%d", r.NegotiatedMaxServOutstandingCalled))
	if r.NegotiatedDataStructureNestingLevel != nil {
		parts = append(parts, fmt.Sprintf("NegotiatedDataStructureNestingLevel:%d", *r.NegotiatedDataStructureNestingLevel))
	}
	parts = append(parts, fmt.Sprintf("NegotiatedVersionNumber:%d", r.NegotiatedVersionNumber))
	return fmt.Sprintf("InitiateResponse{%s}", strings.Join(parts, " "))
}

// Bytes encodes the InitiateResponsePDU (tag 0xA9) a server returns to
// negotiate the association's final parameters.
func (r *InitiateResponse) Bytes() []byte {
	var content []byte
	if r.LocalDetailCalled != nil {
		content = encodeTLV(content, 0x80, encodeUint32(*r.LocalDetailCalled))
	}
	content = encodeTLV(content, 0x81, encodeUint32(r.NegotiatedMaxServOutstandingCalling))
	content = encodeTLV(content, 0x82, encodeUint32(r.NegotiatedMaxServOutstandingCalled))
	if r.NegotiatedDataStructureNestingLevel != nil {
		content = encodeTLV(content, 0x83, encodeUint32(*r.NegotiatedDataStructureNestingLevel))
	}

	var detail []byte
	detail = encodeTLV(detail, 0x80, encodeUint32(r.NegotiatedVersionNumber))
	cbbBytes := ber.EncodeBitmaskFromOffsets(bitOffsets(r.NegotiatedParameterCBB), parameterCBBBitmaskSize*8)
	detail = encodeTLV(detail, 0x81, cbbBytes)
	svcBytes := ber.EncodeBitmaskFromOffsets(bitOffsets(r.ServicesSupportedCalled), servicesSupportedBitmaskSize*8)
	detail = encodeTLV(detail, 0x82, svcBytes)
	content = append(content, encodeTLV(nil, 0xA4, detail)...)

	return encodeTLV(nil, tagInitiateResponse, content)
}

// ParseInitiateResponse decodes an InitiateResponsePDU (tag 0xA9), tolerating
// unrecognized elements by skipping them.
func ParseInitiateResponse(buffer []byte) (*InitiateResponse, error) {
	items, err := decodeTLVs(buffer)
	if err != nil {
		return nil, err
	}
	if len(items) != 1 || items[0].tag != tagInitiateResponse {
		return nil, xerrors.NewProtocol(layer, "expected InitiateResponsePDU tag 0x%02x", tagInitiateResponse)
	}
	fields, err := decodeTLVs(items[0].value)
	if err != nil {
		return nil, err
	}

	resp := &InitiateResponse{}
	for _, f := range fields {
		switch f.tag {
		case 0x80:
			v := decodeUint32(f.value)
			resp.LocalDetailCalled = &v
		case 0x81:
			resp.NegotiatedMaxServOutstandingCalling = decodeUint32(f.value)
		case 0x82:
			resp.NegotiatedMaxServOutstandingCalled = decodeUint32(f.value)
		case 0x83:
			v := decodeUint32(f.value)
			resp.NegotiatedDataStructureNestingLevel = &v
		case 0xA4:
			if err := resp.parseInitDetail(f.value); err != nil {
				return nil, err
			}
		}
	}
	return resp, nil
}

func (r *InitiateResponse) parseInitDetail(buf []byte) error {
	fields, err := decodeTLVs(buf)
	if err != nil {
		return err
	}
	for _, f := range fields {
		switch f.tag {
		case 0x80:
			r.NegotiatedVersionNumber = decodeUint32(f.value)
		case 0x81:
			if len(f.value) > 1 {
				for _, off := range ber.DecodeBitmaskFromBytes(f.value[1:], f.value[0], parameterCBBBitmaskSize*8) {
					r.NegotiatedParameterCBB = append(r.NegotiatedParameterCBB, ParameterCBBBit(off))
				}
			}
		case 0x82:
			if len(f.value) > 1 {
				for _, off := range ber.DecodeBitmaskFromBytes(f.value[1:], f.value[0], servicesSupportedBitmaskSize*8) {
					r.ServicesSupportedCalled = append(r.ServicesSupportedCalled, ServiceSupportedBit(off))
				}
			}
		}
	}
	return nil
}
