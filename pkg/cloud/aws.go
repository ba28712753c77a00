package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

const (
	capacityOnDemand = "ON_DEMAND"
	capacityTypeSpot = "SPOT"

	awsInstanceNotFound = "InvalidInstanceID.NotFound"
)

// ec2API is the subset of the EC2 client used by awsProvider.
type ec2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
}

// awsProvider implements Provider for EC2 instances. Node ids are
// "<zone>/<instance-id>"; a bare instance id is accepted as well.
type awsProvider struct {
	svc ec2API
}

func newAWSProvider(ctx context.Context, profile Profile) (Provider, error) {
	var opts []func(*config.LoadOptions) error
	if profile.Region != "" {
		opts = append(opts, config.WithRegion(profile.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return &awsProvider{svc: ec2.NewFromConfig(cfg)}, nil
}

// NodeMetadata describes the instance and maps it to Metadata.
func (p *awsProvider) NodeMetadata(ctx context.Context, id string) (*Metadata, error) {
	_, instanceID := splitNodeID(id)
	if instanceID == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNodeID, id)
	}

	result, err := p.svc.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == awsInstanceNotFound {
			return nil, nil
		}
		return nil, backendError("describe instance", id, err)
	}

	if len(result.Reservations) == 0 || len(result.Reservations[0].Instances) == 0 {
		return nil, nil
	}

	return awsInstanceMetadata(id, result.Reservations[0].Instances[0]), nil
}

// SuspendNode stops the instance.
func (p *awsProvider) SuspendNode(ctx context.Context, id string) error {
	_, instanceID := splitNodeID(id)
	if _, err := p.svc.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{instanceID},
	}); err != nil {
		return backendError("stop instance", id, err)
	}
	return nil
}

// DestroyNode terminates the instance.
func (p *awsProvider) DestroyNode(ctx context.Context, id string) error {
	_, instanceID := splitNodeID(id)
	if _, err := p.svc.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	}); err != nil {
		return backendError("terminate instance", id, err)
	}
	return nil
}

func awsInstanceMetadata(id string, instance types.Instance) *Metadata {
	md := &Metadata{
		ID:           id,
		Name:         aws.ToString(instance.InstanceId),
		State:        StateUnrecognized,
		InstanceType: string(instance.InstanceType),
		CapacityType: capacityOnDemand,
		Tags:         make(map[string]string, len(instance.Tags)),
	}

	if instance.State != nil {
		md.State = awsInstanceState(instance.State.Name)
	}
	if instance.Placement != nil {
		md.Location = aws.ToString(instance.Placement.AvailabilityZone)
	}
	if instance.InstanceLifecycle == types.InstanceLifecycleTypeSpot {
		md.CapacityType = capacityTypeSpot
	}
	if ip := aws.ToString(instance.PublicIpAddress); ip != "" {
		md.PublicAddresses = []string{ip}
	}
	if ip := aws.ToString(instance.PrivateIpAddress); ip != "" {
		md.PrivateAddresses = []string{ip}
	}

	for _, tag := range instance.Tags {
		if tag.Key == nil || tag.Value == nil {
			continue
		}
		md.Tags[*tag.Key] = *tag.Value
		switch *tag.Key {
		case "Name":
			md.Name = *tag.Value
		case "eks:nodegroup-name":
			md.NodeGroup = *tag.Value
		case "eks:compute-type":
			if *tag.Value == "fargate" {
				md.CapacityType = "FARGATE"
			}
		}
	}

	return md
}

func awsInstanceState(name types.InstanceStateName) NodeState {
	switch name {
	case types.InstanceStateNamePending:
		return StateProvisioning
	case types.InstanceStateNameRunning:
		return StateRunning
	case types.InstanceStateNameStopping, types.InstanceStateNameStopped:
		return StateSuspended
	case types.InstanceStateNameShuttingDown, types.InstanceStateNameTerminated:
		return StateTerminated
	default:
		return StateUnrecognized
	}
}

// nolint:gochecknoinits // registration-style init keeps provider wiring local to this file.
func init() {
	RegisterProvider(ProviderAWS, newAWSProvider)
}
