package cloud

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

type fakeEC2 struct {
	describe    *ec2.DescribeInstancesOutput
	describeErr error
	stopErr     error

	describedIDs  []string
	stoppedIDs    []string
	terminatedIDs []string
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.describedIDs = append(f.describedIDs, in.InstanceIds...)
	return f.describe, f.describeErr
}

func (f *fakeEC2) StopInstances(_ context.Context, in *ec2.StopInstancesInput, _ ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	f.stoppedIDs = append(f.stoppedIDs, in.InstanceIds...)
	return &ec2.StopInstancesOutput{}, f.stopErr
}

func (f *fakeEC2) TerminateInstances(_ context.Context, in *ec2.TerminateInstancesInput, _ ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	f.terminatedIDs = append(f.terminatedIDs, in.InstanceIds...)
	return &ec2.TerminateInstancesOutput{}, nil
}

func oneInstance(i types.Instance) *ec2.DescribeInstancesOutput {
	return &ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{{Instances: []types.Instance{i}}},
	}
}

func TestAWSNodeMetadata_MapsInstance(t *testing.T) {
	f := &fakeEC2{describe: oneInstance(types.Instance{
		InstanceId:        aws.String("i-0abc"),
		InstanceType:      types.InstanceTypeM5Large,
		InstanceLifecycle: types.InstanceLifecycleTypeSpot,
		State:             &types.InstanceState{Name: types.InstanceStateNameRunning},
		Placement:         &types.Placement{AvailabilityZone: aws.String("us-west-2a")},
		PrivateIpAddress:  aws.String("10.0.0.5"),
		Tags: []types.Tag{
			{Key: aws.String("Name"), Value: aws.String("builder")},
			{Key: aws.String("eks:nodegroup-name"), Value: aws.String("ng-1")},
		},
	})}
	p := &awsProvider{svc: f}

	md, err := p.NodeMetadata(context.Background(), "us-west-2a/i-0abc")
	if err != nil {
		t.Fatalf("NodeMetadata returned error: %v", err)
	}

	if len(f.describedIDs) != 1 || f.describedIDs[0] != "i-0abc" {
		t.Fatalf("expected describe for native id, got %v", f.describedIDs)
	}
	if md.ID != "us-west-2a/i-0abc" || md.Name != "builder" || md.State != StateRunning {
		t.Fatalf("unexpected metadata: %+v", md)
	}
	if md.InstanceType != "m5.large" || md.CapacityType != capacityTypeSpot || md.NodeGroup != "ng-1" {
		t.Fatalf("unexpected instance details: %+v", md)
	}
	if md.Location != "us-west-2a" || len(md.PrivateAddresses) != 1 {
		t.Fatalf("unexpected placement/addresses: %+v", md)
	}
}

func TestAWSNodeMetadata_NotFoundIsNil(t *testing.T) {
	f := &fakeEC2{describeErr: &smithy.GenericAPIError{Code: awsInstanceNotFound, Message: "gone"}}
	p := &awsProvider{svc: f}

	md, err := p.NodeMetadata(context.Background(), "i-gone")
	if err != nil || md != nil {
		t.Fatalf("expected nil metadata and no error, got %+v, %v", md, err)
	}
}

func TestAWSNodeMetadata_OtherErrorsAreBackendErrors(t *testing.T) {
	f := &fakeEC2{describeErr: &smithy.GenericAPIError{Code: "RequestLimitExceeded"}}
	p := &awsProvider{svc: f}

	_, err := p.NodeMetadata(context.Background(), "i-1")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	var ae smithy.APIError
	if !errors.As(err, &ae) || ae.ErrorCode() != "RequestLimitExceeded" {
		t.Fatalf("expected the API error to stay reachable, got %v", err)
	}
}

func TestAWSSuspendAndDestroy(t *testing.T) {
	f := &fakeEC2{}
	p := &awsProvider{svc: f}
	ctx := context.Background()

	if err := p.SuspendNode(ctx, "us-east-1/i-1"); err != nil {
		t.Fatalf("SuspendNode returned error: %v", err)
	}
	if err := p.DestroyNode(ctx, "us-east-1/i-2"); err != nil {
		t.Fatalf("DestroyNode returned error: %v", err)
	}

	if len(f.stoppedIDs) != 1 || f.stoppedIDs[0] != "i-1" {
		t.Fatalf("unexpected stop calls: %v", f.stoppedIDs)
	}
	if len(f.terminatedIDs) != 1 || f.terminatedIDs[0] != "i-2" {
		t.Fatalf("unexpected terminate calls: %v", f.terminatedIDs)
	}

	f.stopErr = errors.New("throttled")
	if err := p.SuspendNode(ctx, "i-3"); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestAWSInstanceState(t *testing.T) {
	tests := map[types.InstanceStateName]NodeState{
		types.InstanceStateNamePending:      StateProvisioning,
		types.InstanceStateNameRunning:      StateRunning,
		types.InstanceStateNameStopping:     StateSuspended,
		types.InstanceStateNameStopped:      StateSuspended,
		types.InstanceStateNameShuttingDown: StateTerminated,
		types.InstanceStateNameTerminated:   StateTerminated,
		"bogus":                             StateUnrecognized,
	}
	for in, want := range tests {
		if got := awsInstanceState(in); got != want {
			t.Errorf("awsInstanceState(%q) = %q, want %q", in, got, want)
		}
	}
}
