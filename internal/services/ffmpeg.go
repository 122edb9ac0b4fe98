package services

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// FFmpegService
// Wraps all ffmpeg/ffprobe invocations: audio speed adjustment, per-scene
// video+narration muxing, final concatenation, and background music mixing.
// Commands run through an ExecRunner so adapters are testable without the
// binaries installed.
// ---------------------------------------------------------------------------

// Output normalization constants — all scene clips are composed into
// 720p30 regardless of what the render engine produced.
const (
	outputWidth  = 1280
	outputHeight = 720
	videoFPS     = 30
)

type FFmpegService struct {
	runner      ExecRunner
	musicVolume float64
}

// NewFFmpegService creates the muxing/transcoding service. musicVolume is
// the gain applied to background music under narration (<= 0 defaults to
// 0.22).
func NewFFmpegService(runner ExecRunner, musicVolume float64) *FFmpegService {
	if musicVolume <= 0 {
		musicVolume = 0.22
	}
	return &FFmpegService{runner: runner, musicVolume: musicVolume}
}

// AdjustAudioSpeed re-times an audio file with ffmpeg's atempo filter.
// factor 0.90 makes the audio 10% slower. Writes to a temp file first so a
// failed run never leaves a truncated output behind.
func (s *FFmpegService) AdjustAudioSpeed(ctx context.Context, inputPath, outputPath string, factor float64) error {
	tempPath := outputPath + ".temp.mp3"

	args := []string{
		"-i", inputPath,
		"-filter:a", fmt.Sprintf("atempo=%.2f", factor),
		"-acodec", "libmp3lame",
		"-y",
		tempPath,
	}

	if out, err := s.runner.Run(ctx, "", "ffmpeg", args...); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("ffmpeg atempo failed: %w (output: %s)", err, truncateOutput(out, 300))
	}

	if err := os.Rename(tempPath, outputPath); err != nil {
		return fmt.Errorf("failed to move speed-adjusted audio into place: %w", err)
	}

	return nil
}

// GetVideoDuration returns a video file's duration in seconds, probed from
// its video stream.
func (s *FFmpegService) GetVideoDuration(ctx context.Context, videoPath string) (float64, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	}

	out, err := s.runner.Run(ctx, "", "ffprobe", args...)
	if err != nil {
		return 0, fmt.Errorf("ffprobe video duration failed: %w (output: %s)", err, truncateOutput(out, 300))
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse video duration %q: %w", strings.TrimSpace(out), err)
	}

	return duration, nil
}

// GetAudioDuration returns an audio file's duration in seconds. This probes
// the container format instead of the audio stream — stream-level duration
// is unreliable for mp3 and similar containers.
func (s *FFmpegService) GetAudioDuration(ctx context.Context, audioPath string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	}

	out, err := s.runner.Run(ctx, "", "ffprobe", args...)
	if err != nil {
		return 0, fmt.Errorf("ffprobe audio duration failed: %w (output: %s)", err, truncateOutput(out, 300))
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse audio duration %q: %w", strings.TrimSpace(out), err)
	}

	return duration, nil
}

// CombineSceneAssets muxes one scene's rendered video with its narration
// audio into a single clip. The narration is authoritative for clip length:
// if the audio outlasts the video, the last frame is held (tpad clone) to
// fill the gap, and the output is trimmed to exactly the audio duration.
// Video is never sped up or stretched.
func (s *FFmpegService) CombineSceneAssets(ctx context.Context, videoPath, audioPath, outputDir string) (string, error) {
	outputPath := filepath.Join(outputDir, fmt.Sprintf("combined_scene_%s.mp4", uuid.New().String()[:8]))

	videoDuration, err := s.GetVideoDuration(ctx, videoPath)
	if err != nil {
		return "", err
	}

	audioDuration, err := s.GetAudioDuration(ctx, audioPath)
	if err != nil {
		return "", err
	}

	log.Printf("[Stitcher] Combining %s (%.2fs) + %s (%.2fs)",
		filepath.Base(videoPath), videoDuration, filepath.Base(audioPath), audioDuration)

	args := []string{
		"-i", videoPath,
		"-i", audioPath,
	}

	if audioDuration > videoDuration {
		padFilter := fmt.Sprintf("[0:v]tpad=stop_mode=clone:stop_duration=%.3f[v]", audioDuration-videoDuration)
		args = append(args,
			"-filter_complex", padFilter,
			"-map", "[v]",
		)
	} else {
		args = append(args, "-map", "0:v")
	}

	args = append(args,
		"-map", "1:a",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-t", fmt.Sprintf("%.3f", audioDuration),
		"-y",
		outputPath,
	)

	if out, err := s.runner.Run(ctx, "", "ffmpeg", args...); err != nil {
		return "", fmt.Errorf("ffmpeg combine failed: %w (output: %s)", err, truncateOutput(out, 300))
	}

	log.Printf("[Stitcher] Scene combined: %s", outputPath)
	return outputPath, nil
}

// StitchFinalVideo concatenates the combined scene clips in order, then
// mixes one background music track (chosen pseudo-randomly from musicPaths)
// under the narration at reduced gain.
//
// Music mixing is best-effort: a missing track or a failed mix promotes the
// plain concatenation to be the final output instead of failing the task.
func (s *FFmpegService) StitchFinalVideo(ctx context.Context, scenePaths []string, outputDir string, musicPaths []string) (string, error) {
	if len(scenePaths) == 0 {
		return "", fmt.Errorf("cannot stitch video, no scene clips provided")
	}

	log.Printf("[Stitcher] Stitching %d scenes into final video...", len(scenePaths))

	intermediatePath := filepath.Join(outputDir, fmt.Sprintf("intermediate_%s.mp4", uuid.New().String()[:8]))
	outputPath := filepath.Join(outputDir, "final_video.mp4")

	if err := s.concatCompose(ctx, scenePaths, intermediatePath); err != nil {
		return "", err
	}

	musicPath := ""
	if len(musicPaths) > 0 {
		musicPath = musicPaths[rand.Intn(len(musicPaths))]
	}

	if musicPath == "" {
		if err := os.Rename(intermediatePath, outputPath); err != nil {
			return "", fmt.Errorf("failed to finalize stitched video: %w", err)
		}
		return outputPath, nil
	}

	if _, err := os.Stat(musicPath); os.IsNotExist(err) {
		log.Printf("[Stitcher] WARNING: background music file not found at %s, skipping music", musicPath)
		if err := os.Rename(intermediatePath, outputPath); err != nil {
			return "", fmt.Errorf("failed to finalize stitched video: %w", err)
		}
		return outputPath, nil
	}

	log.Printf("[Stitcher] Adding background music from %s...", filepath.Base(musicPath))

	if err := s.mixMusic(ctx, intermediatePath, musicPath, outputPath); err != nil {
		// Promote the pre-music intermediate to final output
		log.Printf("[Stitcher] WARNING: music mixing failed, using video without music: %v", err)
		if renameErr := os.Rename(intermediatePath, outputPath); renameErr != nil {
			return "", fmt.Errorf("failed to finalize stitched video after mix failure: %w", renameErr)
		}
		return outputPath, nil
	}

	os.Remove(intermediatePath)
	log.Printf("[Stitcher] Final video stitched: %s", outputPath)
	return outputPath, nil
}

// concatCompose concatenates clips with a normalizing filter graph: every
// input is scaled into a 1280x720 canvas (padded, never distorted), forced
// to a common frame rate and sample rate, then joined with the concat
// filter. This tolerates renderers producing differing resolutions.
func (s *FFmpegService) concatCompose(ctx context.Context, scenePaths []string, outputPath string) error {
	args := make([]string, 0, 2*len(scenePaths)+10)
	for _, path := range scenePaths {
		args = append(args, "-i", path)
	}

	var filter strings.Builder
	for i := range scenePaths {
		fmt.Fprintf(&filter,
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d[v%d];",
			i, outputWidth, outputHeight, outputWidth, outputHeight, videoFPS, i)
		fmt.Fprintf(&filter, "[%d:a]aresample=44100[a%d];", i, i)
	}
	for i := range scenePaths {
		fmt.Fprintf(&filter, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=1[v][a]", len(scenePaths))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	)

	if out, err := s.runner.Run(ctx, "", "ffmpeg", args...); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w (output: %s)", err, truncateOutput(out, 300))
	}

	return nil
}

// mixMusic overlays the music track under the primary audio. amix with
// duration=first anchors the result to the video's length; music shorter
// than the video simply runs out (accepted limitation, no looping).
func (s *FFmpegService) mixMusic(ctx context.Context, videoPath, musicPath, outputPath string) error {
	filterComplex := fmt.Sprintf(
		"[0:a]volume=1.0[narration];[1:a]volume=%.2f[music];[narration][music]amix=inputs=2:duration=first:dropout_transition=1[aout]",
		s.musicVolume)

	args := []string{
		"-i", videoPath,
		"-i", musicPath,
		"-filter_complex", filterComplex,
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-y",
		outputPath,
	}

	if out, err := s.runner.Run(ctx, "", "ffmpeg", args...); err != nil {
		return fmt.Errorf("ffmpeg music mix failed: %w (output: %s)", err, truncateOutput(out, 300))
	}

	return nil
}

// truncateOutput limits captured subprocess output embedded in error text.
func truncateOutput(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
