package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	compute "cloud.google.com/go/compute/apiv1"
	computepb "cloud.google.com/go/compute/apiv1/computepb"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
)

// gceInstance identifies a GCE instance.
type gceInstance struct {
	project, zone, name string
}

// parseGCENodeID parses ids of the form "project/zone/instance-name".
func parseGCENodeID(id string) (gceInstance, error) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return gceInstance{}, fmt.Errorf("%w: invalid GCE node id %q", ErrInvalidNodeID, id)
	}
	return gceInstance{project: parts[0], zone: parts[1], name: parts[2]}, nil
}

// instancesAPI is the subset of the instances client used by gceProvider.
// Mutating calls return once the zonal operation has finished.
type instancesAPI interface {
	get(ctx context.Context, in gceInstance) (*computepb.Instance, error)
	stop(ctx context.Context, in gceInstance) error
	remove(ctx context.Context, in gceInstance) error
}

type restInstances struct {
	c *compute.InstancesClient
}

func (r restInstances) get(ctx context.Context, in gceInstance) (*computepb.Instance, error) {
	return r.c.Get(ctx, &computepb.GetInstanceRequest{
		Project:  in.project,
		Zone:     in.zone,
		Instance: in.name,
	})
}

func (r restInstances) stop(ctx context.Context, in gceInstance) error {
	op, err := r.c.Stop(ctx, &computepb.StopInstanceRequest{
		Project:  in.project,
		Zone:     in.zone,
		Instance: in.name,
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

func (r restInstances) remove(ctx context.Context, in gceInstance) error {
	op, err := r.c.Delete(ctx, &computepb.DeleteInstanceRequest{
		Project:  in.project,
		Zone:     in.zone,
		Instance: in.name,
	})
	if err != nil {
		return err
	}
	return op.Wait(ctx)
}

// gceProvider implements Provider for GCE instances.
type gceProvider struct {
	instances instancesAPI
}

func newGCEProvider(ctx context.Context, _ Profile) (Provider, error) {
	c, err := compute.NewInstancesRESTClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCE client: %w", err)
	}
	return &gceProvider{instances: restInstances{c: c}}, nil
}

// NodeMetadata fetches the instance and maps it to Metadata.
func (p *gceProvider) NodeMetadata(ctx context.Context, id string) (*Metadata, error) {
	in, err := parseGCENodeID(id)
	if err != nil {
		return nil, err
	}

	instance, err := p.instances.get(ctx, in)
	if err != nil {
		if isGCENotFound(err) {
			return nil, nil
		}
		return nil, backendError("get GCE instance", id, err)
	}

	return gceInstanceMetadata(id, in, instance), nil
}

// SuspendNode stops the instance and waits for the operation.
func (p *gceProvider) SuspendNode(ctx context.Context, id string) error {
	in, err := parseGCENodeID(id)
	if err != nil {
		return err
	}
	if err := p.instances.stop(ctx, in); err != nil {
		return backendError("stop GCE instance", id, err)
	}
	return nil
}

// DestroyNode deletes the instance and waits for the operation.
func (p *gceProvider) DestroyNode(ctx context.Context, id string) error {
	in, err := parseGCENodeID(id)
	if err != nil {
		return err
	}
	if err := p.instances.remove(ctx, in); err != nil {
		return backendError("delete GCE instance", id, err)
	}
	return nil
}

func gceInstanceMetadata(id string, in gceInstance, instance *computepb.Instance) *Metadata {
	md := &Metadata{
		ID:           id,
		Name:         instance.GetName(),
		State:        gceInstanceState(instance.GetStatus()),
		Location:     in.zone,
		CapacityType: "STANDARD",
		Tags:         instance.GetLabels(),
	}

	if instance.MachineType != nil {
		// Extract just the machine type name from the full URL.
		parts := strings.Split(*instance.MachineType, "/")
		md.InstanceType = parts[len(parts)-1]
	}

	for _, item := range instance.GetMetadata().GetItems() {
		if item.GetKey() == "gke-nodepool" {
			md.NodePool = item.GetValue()
		}
	}
	if md.NodePool == "" {
		md.NodePool = instance.GetLabels()["gke-nodepool"]
	}

	if instance.GetScheduling().GetProvisioningModel() == "SPOT" {
		md.CapacityType = capacityTypeSpot
	}

	for _, nic := range instance.GetNetworkInterfaces() {
		if ip := nic.GetNetworkIP(); ip != "" {
			md.PrivateAddresses = append(md.PrivateAddresses, ip)
		}
		for _, ac := range nic.GetAccessConfigs() {
			if ip := ac.GetNatIP(); ip != "" {
				md.PublicAddresses = append(md.PublicAddresses, ip)
			}
		}
	}

	return md
}

func gceInstanceState(status string) NodeState {
	switch status {
	case "PROVISIONING", "STAGING":
		return StateProvisioning
	case "RUNNING":
		return StateRunning
	case "STOPPING", "SUSPENDING", "SUSPENDED", "TERMINATED":
		// GCE reports stopped instances as TERMINATED; they can be restarted.
		return StateSuspended
	case "REPAIRING":
		return StateError
	default:
		return StateUnrecognized
	}
}

func isGCENotFound(err error) bool {
	var ae *apierror.APIError
	if errors.As(err, &ae) && ae.HTTPCode() == http.StatusNotFound {
		return true
	}
	var ge *googleapi.Error
	return errors.As(err, &ge) && ge.Code == http.StatusNotFound
}

// nolint:gochecknoinits // registration-style init keeps provider wiring local to this file.
func init() {
	RegisterProvider(ProviderGCE, newGCEProvider)
}
