package chain

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// CertificateContractABI is the interface of the per-institution certificate contract.
const CertificateContractABI = `[
	{"type":"function","name":"setCertificate","stateMutability":"nonpayable","inputs":[
		{"name":"_studentId","type":"string"},
		{"name":"_documentHash","type":"string"},
		{"name":"_studentName","type":"string"},
		{"name":"_issuerID","type":"string"},
		{"name":"_course","type":"string"},
		{"name":"_certificateType","type":"string"},
		{"name":"_yearOfGraduation","type":"string"}
	],"outputs":[]},
	{"type":"function","name":"revokeCertificate","stateMutability":"nonpayable","inputs":[
		{"name":"_studentId","type":"string"},
		{"name":"_reason","type":"string"}
	],"outputs":[]},
	{"type":"function","name":"getStudentIDs","stateMutability":"view","inputs":[],"outputs":[
		{"name":"","type":"string[]"}
	]},
	{"type":"function","name":"getCertificateInfo","stateMutability":"view","inputs":[
		{"name":"_studentId","type":"string"}
	],"outputs":[
		{"name":"documentHash","type":"string"},
		{"name":"studentName","type":"string"}
	]},
	{"type":"function","name":"getFullCertificateInfo","stateMutability":"view","inputs":[
		{"name":"_studentId","type":"string"}
	],"outputs":[
		{"name":"course","type":"string"},
		{"name":"certificateType","type":"string"},
		{"name":"yearOfGraduation","type":"string"}
	]},
	{"type":"function","name":"getCertificateStatus","stateMutability":"view","inputs":[
		{"name":"_studentId","type":"string"}
	],"outputs":[
		{"name":"isRevoked","type":"bool"},
		{"name":"revokedAt","type":"uint256"},
		{"name":"reason","type":"string"}
	]}
]`

const (
	methodSetCertificate         = "setCertificate"
	methodRevokeCertificate      = "revokeCertificate"
	methodGetStudentIDs          = "getStudentIDs"
	methodGetCertificateInfo     = "getCertificateInfo"
	methodGetFullCertificateInfo = "getFullCertificateInfo"
	methodGetCertificateStatus   = "getCertificateStatus"
)

// ErrNotIssuance is returned when calldata is not a setCertificate call.
var ErrNotIssuance = errors.New("calldata is not a certificate issuance")

var contractABI abi.ABI

func init() {
	parsed, err := abi.JSON(bytes.NewReader([]byte(CertificateContractABI)))
	if err != nil {
		panic(fmt.Sprintf("invalid certificate contract ABI: %v", err))
	}
	contractABI = parsed
}

// ContractABI returns the parsed certificate contract ABI.
func ContractABI() abi.ABI {
	return contractABI
}

// PackSetCertificate encodes a setCertificate call, selector included.
func PackSetCertificate(f interfaces.CertificateFields) ([]byte, error) {
	return contractABI.Pack(methodSetCertificate,
		f.StudentID, f.DocumentHash, f.StudentName, f.IssuerID,
		f.Course, f.CertificateType, f.YearOfGraduation)
}

// PackRevokeCertificate encodes a revokeCertificate call, selector included.
func PackRevokeCertificate(studentID, reason string) ([]byte, error) {
	return contractABI.Pack(methodRevokeCertificate, studentID, reason)
}

// UnpackSetCertificate strips the 4-byte selector from calldata and decodes
// the seven ordered string parameters.
func UnpackSetCertificate(calldata []byte) (*interfaces.CertificateFields, error) {
	if len(calldata) < 4 {
		return nil, fmt.Errorf("%w: input too short", ErrNotIssuance)
	}

	method := contractABI.Methods[methodSetCertificate]
	if !bytes.Equal(calldata[:4], method.ID) {
		return nil, fmt.Errorf("%w: selector %x", ErrNotIssuance, calldata[:4])
	}

	values, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotIssuance, err)
	}
	if len(values) != 7 {
		return nil, fmt.Errorf("%w: expected 7 parameters, got %d", ErrNotIssuance, len(values))
	}

	params := make([]string, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: parameter %d is %T", ErrNotIssuance, i, v)
		}
		params[i] = s
	}

	return &interfaces.CertificateFields{
		StudentID:        params[0],
		DocumentHash:     params[1],
		StudentName:      params[2],
		IssuerID:         params[3],
		Course:           params[4],
		CertificateType:  params[5],
		YearOfGraduation: params[6],
	}, nil
}
