package cluster

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	kubebatch "k8s.io/api/batch/v1"
	kubecore "k8s.io/api/core/v1"
	kubeerr "k8s.io/apimachinery/pkg/api/errors"
	kubeapimeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8s "k8s.io/client-go/kubernetes"
)

const (
	appLabelKey   = "app"
	appLabelValue = "cubegen"
	containerName = "cubegen"

	// descriptorEnvVar hands the serialized request to the runner image.
	descriptorEnvVar = "CUBEGEN_REQUEST"
)

// K8sScheduler runs cubegen workloads as Kubernetes batch Jobs in a single
// namespace.
type K8sScheduler struct {
	client    k8s.Interface
	namespace string
	image     string
	log       *zap.Logger
}

var _ Scheduler = (*K8sScheduler)(nil)

// NewK8sScheduler wraps a Kubernetes client.
func NewK8sScheduler(client k8s.Interface, namespace, image string, log *zap.Logger) *K8sScheduler {
	return &K8sScheduler{
		client:    client,
		namespace: namespace,
		image:     image,
		log:       log.Named("cluster.k8s"),
	}
}

func (s *K8sScheduler) Submit(ctx context.Context, jobID string, spec JobSpec) error {
	labels := map[string]string{appLabelKey: appLabelValue}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	backoffLimit := int32(0)
	job := &kubebatch.Job{
		ObjectMeta: kubeapimeta.ObjectMeta{
			Name:      jobID,
			Namespace: s.namespace,
			Labels:    labels,
		},
		Spec: kubebatch.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: kubecore.PodTemplateSpec{
				ObjectMeta: kubeapimeta.ObjectMeta{Labels: labels},
				Spec: kubecore.PodSpec{
					RestartPolicy: kubecore.RestartPolicyNever,
					Containers: []kubecore.Container{
						{
							Name:  containerName,
							Image: s.image,
							Env: []kubecore.EnvVar{
								{Name: descriptorEnvVar, Value: string(spec.Descriptor)},
							},
						},
					},
				},
			},
		},
	}

	if _, err := s.client.BatchV1().Jobs(s.namespace).Create(ctx, job, kubeapimeta.CreateOptions{}); err != nil {
		return wrapError(err)
	}
	s.log.Info("job submitted", zap.String("job_id", jobID))
	return nil
}

func (s *K8sScheduler) Status(ctx context.Context, jobID string) (JobStatus, error) {
	job, err := s.client.BatchV1().Jobs(s.namespace).Get(ctx, jobID, kubeapimeta.GetOptions{})
	if err != nil {
		return JobStatus{}, wrapError(err)
	}

	status := JobStatus{
		Active:    job.Status.Active,
		Succeeded: job.Status.Succeeded > 0,
		Failed:    jobFailed(job),
	}
	if job.Status.StartTime != nil {
		t := job.Status.StartTime.Time
		status.StartTime = &t
	}
	if job.Status.CompletionTime != nil {
		t := job.Status.CompletionTime.Time
		status.CompletionTime = &t
	}

	switch {
	case status.Succeeded:
		status.Phase = PhaseSucceeded
	case status.Failed:
		status.Phase = PhaseFailed
	case status.Active > 0:
		status.Phase = PhaseActive
	default:
		status.Phase = PhasePending
	}
	return status, nil
}

func (s *K8sScheduler) Logs(ctx context.Context, jobID string) ([]string, error) {
	pods, err := s.client.CoreV1().Pods(s.namespace).List(ctx, kubeapimeta.ListOptions{
		LabelSelector: "job-name=" + jobID,
	})
	if err != nil {
		return nil, wrapError(err)
	}

	var lines []string
	for _, pod := range pods.Items {
		stream, err := s.client.CoreV1().
			Pods(s.namespace).
			GetLogs(pod.Name, &kubecore.PodLogOptions{Container: containerName}).
			Stream(ctx)
		if err != nil {
			// A pod may be gone or not started; skip it rather than fail
			// the whole status merge.
			s.log.Warn("cannot read pod log",
				zap.String("job_id", jobID),
				zap.String("pod", pod.Name),
				zap.Error(err),
			)
			continue
		}
		scanner := bufio.NewScanner(stream)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		_ = stream.Close()
		if err := scanner.Err(); err != nil {
			return nil, wrapError(err)
		}
	}
	return lines, nil
}

func (s *K8sScheduler) List(ctx context.Context, prefix string) ([]string, error) {
	jobs, err := s.client.BatchV1().Jobs(s.namespace).List(ctx, kubeapimeta.ListOptions{
		LabelSelector: appLabelKey + "=" + appLabelValue,
	})
	if err != nil {
		return nil, wrapError(err)
	}

	ids := make([]string, 0, len(jobs.Items))
	for _, job := range jobs.Items {
		if strings.HasPrefix(job.Name, prefix) {
			ids = append(ids, job.Name)
		}
	}
	return ids, nil
}

func (s *K8sScheduler) Delete(ctx context.Context, jobID string) error {
	foreground := kubeapimeta.DeletePropagationForeground
	zero := int64(0)
	err := s.client.BatchV1().Jobs(s.namespace).Delete(ctx, jobID, kubeapimeta.DeleteOptions{
		GracePeriodSeconds: &zero,
		PropagationPolicy:  &foreground,
	})
	if err != nil {
		return wrapError(err)
	}
	s.log.Info("job deleted", zap.String("job_id", jobID))
	return nil
}

func jobFailed(job *kubebatch.Job) bool {
	if job.Status.Failed > 0 {
		return true
	}
	for _, cond := range job.Status.Conditions {
		if cond.Type == kubebatch.JobFailed && cond.Status == kubecore.ConditionTrue {
			return true
		}
	}
	return false
}

func wrapError(err error) error {
	if kubeerr.IsNotFound(err) {
		return ErrJobNotFound
	}
	var statusErr *kubeerr.StatusError
	if errors.As(err, &statusErr) {
		return &Error{
			Code:   int(statusErr.ErrStatus.Code),
			Reason: string(statusErr.ErrStatus.Reason),
			cause:  err,
		}
	}
	return &Error{Code: http.StatusInternalServerError, Reason: err.Error(), cause: err}
}
