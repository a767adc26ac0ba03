package premises

import (
	"os"

	"github.com/homegrid/gateway-client/pkg/file"
)

// Identity holds the premises identifier and the serial of its paired gateway.
type Identity struct {
	PremisesID    string `json:"premises_id,omitempty"`
	GatewaySerial string `json:"gateway_serial,omitempty"`
}

// PremisesInfoInterface defines methods for managing the persisted premises identity.
type PremisesInfoInterface interface {
	LoadPremisesInfo() error
	SaveGatewaySerial(serial string) error
	GetPremisesID() string
	GetGatewaySerial() string
}

// PremisesInfo manages the premises identity and its associated file operations.
type PremisesInfo struct {
	PremisesInfoFile string
	Identity         Identity
	fileOps          file.FileOperations
}

// NewPremisesInfo initializes a new PremisesInfo instance.
func NewPremisesInfo(filePath string, fileOps file.FileOperations) PremisesInfoInterface {
	return &PremisesInfo{
		PremisesInfoFile: filePath,
		fileOps:          fileOps,
		Identity:         Identity{},
	}
}

// LoadPremisesInfo reads the premises information from the file and populates
// the Identity field. A missing file yields an empty identity, not an error.
func (p *PremisesInfo) LoadPremisesInfo() error {
	err := p.fileOps.ReadJsonFile(p.PremisesInfoFile, &p.Identity)
	if err != nil {
		if os.IsNotExist(err) {
			p.Identity = Identity{}
			return nil
		}
		return err
	}
	return nil
}

// GetPremisesID returns the current premises ID.
func (p *PremisesInfo) GetPremisesID() string {
	return p.Identity.PremisesID
}

// GetGatewaySerial returns the serial of the currently paired gateway, if any.
func (p *PremisesInfo) GetGatewaySerial() string {
	return p.Identity.GatewaySerial
}

// SaveGatewaySerial updates the paired gateway serial and writes it back to
// the file. An empty serial records an unpaired premises.
func (p *PremisesInfo) SaveGatewaySerial(serial string) error {
	p.Identity.GatewaySerial = serial
	return p.fileOps.WriteJsonFile(p.PremisesInfoFile, p.Identity)
}
